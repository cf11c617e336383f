package intopic

import (
	"context"
	"fmt"

	"github.com/correlator-io/dataengine/internal/dataengine"
	"github.com/correlator-io/dataengine/internal/metadata"
)

type handlerFunc func(ctx context.Context, svc *dataengine.Service, e *Event) error

//nolint:gochecknoglobals // read-only dispatch table
var handlers = map[EventType]handlerFunc{
	RegistrationEvent: func(ctx context.Context, svc *dataengine.Service, e *Event) error {
		if e.SoftwareServerCapability == nil {
			return missing("softwareServerCapability")
		}

		_, err := svc.RegisterExternalDataEngine(ctx, e.UserID, e.SoftwareServerCapability)

		return err
	},
	ProcessEvent: func(ctx context.Context, svc *dataengine.Service, e *Event) error {
		if e.Process == nil {
			return missing("process")
		}

		_, err := svc.UpsertProcess(ctx, e.UserID, e.ExternalSourceName, e.Process)

		return err
	},
	PortImplementationEvent: func(ctx context.Context, svc *dataengine.Service, e *Event) error {
		if e.PortImplementation == nil {
			return missing("portImplementation")
		}

		_, err := svc.UpsertPortImplementation(ctx, e.UserID, e.ExternalSourceName,
			e.PortImplementation, e.ProcessQualifiedName)

		return err
	},
	PortAliasEvent: func(ctx context.Context, svc *dataengine.Service, e *Event) error {
		if e.PortAlias == nil {
			return missing("portAlias")
		}

		_, err := svc.UpsertPortAlias(ctx, e.UserID, e.ExternalSourceName, e.PortAlias, e.ProcessQualifiedName)

		return err
	},
	SchemaTypeEvent: func(ctx context.Context, svc *dataengine.Service, e *Event) error {
		if e.SchemaType == nil {
			return missing("schemaType")
		}

		_, err := svc.UpsertSchemaType(ctx, e.UserID, e.ExternalSourceName, e.SchemaType)

		return err
	},
	LineageMappingsEvent: func(ctx context.Context, svc *dataengine.Service, e *Event) error {
		if len(e.LineageMappings) == 0 {
			return missing("lineageMappings")
		}

		return svc.AddLineageMappings(ctx, e.UserID, e.ExternalSourceName, e.LineageMappings)
	},
	ProcessHierarchyEvent: func(ctx context.Context, svc *dataengine.Service, e *Event) error {
		if e.ParentProcess == nil {
			return missing("parentProcess")
		}

		return svc.AddProcessHierarchy(ctx, e.UserID, e.ExternalSourceName,
			e.ParentProcess, e.ChildProcessQualifiedName)
	},
	DataFlowsEvent: func(ctx context.Context, svc *dataengine.Service, e *Event) error {
		if len(e.DataFlows) == 0 {
			return missing("dataFlows")
		}

		return svc.AddDataFlows(ctx, e.UserID, e.ExternalSourceName, e.DataFlows)
	},
	DatabaseEvent: func(ctx context.Context, svc *dataengine.Service, e *Event) error {
		if e.Database == nil {
			return missing("database")
		}

		_, err := svc.UpsertDatabase(ctx, e.UserID, e.ExternalSourceName, e.Database)

		return err
	},
	DatabaseSchemaEvent: func(ctx context.Context, svc *dataengine.Service, e *Event) error {
		if e.DatabaseSchema == nil {
			return missing("databaseSchema")
		}

		_, err := svc.UpsertDatabaseSchema(ctx, e.UserID, e.ExternalSourceName,
			e.DatabaseSchema, e.DatabaseQualifiedName)

		return err
	},
	RelationalTableEvent: func(ctx context.Context, svc *dataengine.Service, e *Event) error {
		if e.RelationalTable == nil {
			return missing("relationalTable")
		}

		_, err := svc.UpsertRelationalTable(ctx, e.UserID, e.ExternalSourceName,
			e.RelationalTable, e.DatabaseSchemaQualifiedName)

		return err
	},
	DataFileEvent: func(ctx context.Context, svc *dataengine.Service, e *Event) error {
		if e.DataFile == nil {
			return missing("dataFile")
		}

		_, err := svc.UpsertDataFile(ctx, e.UserID, e.ExternalSourceName, e.DataFile)

		return err
	},
	FolderEvent: func(ctx context.Context, svc *dataengine.Service, e *Event) error {
		if e.Folder == nil {
			return missing("folder")
		}

		_, err := svc.UpsertFolder(ctx, e.UserID, e.ExternalSourceName, e.Folder)

		return err
	},
	TopicEvent: func(ctx context.Context, svc *dataengine.Service, e *Event) error {
		if e.Topic == nil {
			return missing("topic")
		}

		_, err := svc.UpsertTopic(ctx, e.UserID, e.ExternalSourceName, e.Topic)

		return err
	},
	EventTypeEvent: func(ctx context.Context, svc *dataengine.Service, e *Event) error {
		if e.EventType == nil {
			return missing("eventType")
		}

		_, err := svc.UpsertEventType(ctx, e.UserID, e.ExternalSourceName, e.EventType, e.TopicQualifiedName)

		return err
	},
	CollectionEvent: func(ctx context.Context, svc *dataengine.Service, e *Event) error {
		if e.Collection == nil {
			return missing("collection")
		}

		_, err := svc.UpsertCollection(ctx, e.UserID, e.ExternalSourceName, e.Collection)

		return err
	},
	ProcessingStateEvent: func(ctx context.Context, svc *dataengine.Service, e *Event) error {
		if e.ProcessingState == nil {
			return missing("processingState")
		}

		return svc.UpsertProcessingState(ctx, e.UserID, e.ExternalSourceName, e.ProcessingState)
	},

	DeleteProcessEvent:         deleteWith((*dataengine.Service).DeleteProcess),
	DeletePortEvent:            deleteWith((*dataengine.Service).DeletePort),
	DeleteSchemaTypeEvent:      deleteWith((*dataengine.Service).DeleteSchemaType),
	DeleteDatabaseEvent:        deleteWith((*dataengine.Service).DeleteDatabase),
	DeleteDatabaseSchemaEvent:  deleteWith((*dataengine.Service).DeleteDatabaseSchema),
	DeleteRelationalTableEvent: deleteWith((*dataengine.Service).DeleteRelationalTable),
	DeleteDataFileEvent:        deleteWith((*dataengine.Service).DeleteDataFile),
	DeleteFolderEvent:          deleteWith((*dataengine.Service).DeleteFolder),
	DeleteTopicEvent:           deleteWith((*dataengine.Service).DeleteTopic),
	DeleteEventTypeEvent:       deleteWith((*dataengine.Service).DeleteEventType),
	DeleteCollectionEvent:      deleteWith((*dataengine.Service).DeleteCollection),
	DeleteEngineEvent: func(ctx context.Context, svc *dataengine.Service, e *Event) error {
		return svc.DeleteExternalDataEngine(ctx, e.UserID, e.QualifiedName, e.GUID, e.DeleteSemantic)
	},
}

type deleteMethod func(
	svc *dataengine.Service,
	ctx context.Context,
	userID, externalSourceName, qualifiedName string,
	semantic metadata.DeleteSemantic,
) error

func deleteWith(del deleteMethod) handlerFunc {
	return func(ctx context.Context, svc *dataengine.Service, e *Event) error {
		return del(svc, ctx, e.UserID, e.ExternalSourceName, e.QualifiedName, e.DeleteSemantic)
	}
}

func missing(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingPayload, field)
}

// Dispatch applies e to the service.
func Dispatch(ctx context.Context, svc *dataengine.Service, e *Event) error {
	handle, ok := handlers[e.Type]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEventType, e.Type)
	}

	return handle(ctx, svc, e)
}
