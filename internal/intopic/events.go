package intopic

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/correlator-io/dataengine/internal/metadata"
)

// EventType is the dataEngineEventType discriminator of an in-topic message.
type EventType string

const (
	RegistrationEvent       EventType = "DATA_ENGINE_REGISTRATION_EVENT"
	ProcessEvent            EventType = "PROCESS_EVENT"
	PortImplementationEvent EventType = "PORT_IMPLEMENTATION_EVENT"
	PortAliasEvent          EventType = "PORT_ALIAS_EVENT"
	SchemaTypeEvent         EventType = "SCHEMA_TYPE_EVENT"
	LineageMappingsEvent    EventType = "LINEAGE_MAPPINGS_EVENT"
	ProcessHierarchyEvent   EventType = "PROCESS_HIERARCHY_EVENT"
	DataFlowsEvent          EventType = "DATA_FLOWS_EVENT"
	DatabaseEvent           EventType = "DATABASE_EVENT"
	DatabaseSchemaEvent     EventType = "DATABASE_SCHEMA_EVENT"
	RelationalTableEvent    EventType = "RELATIONAL_TABLE_EVENT"
	DataFileEvent           EventType = "DATA_FILE_EVENT"
	FolderEvent             EventType = "FOLDER_EVENT"
	TopicEvent              EventType = "TOPIC_EVENT"
	EventTypeEvent          EventType = "EVENT_TYPE_EVENT"
	CollectionEvent         EventType = "COLLECTION_EVENT"
	ProcessingStateEvent    EventType = "PROCESSING_STATE_EVENT"

	DeleteProcessEvent         EventType = "DELETE_PROCESS_EVENT"
	DeletePortEvent            EventType = "DELETE_PORT_EVENT"
	DeleteSchemaTypeEvent      EventType = "DELETE_SCHEMA_TYPE_EVENT"
	DeleteDatabaseEvent        EventType = "DELETE_DATABASE_EVENT"
	DeleteDatabaseSchemaEvent  EventType = "DELETE_DATABASE_SCHEMA_EVENT"
	DeleteRelationalTableEvent EventType = "DELETE_RELATIONAL_TABLE_EVENT"
	DeleteDataFileEvent        EventType = "DELETE_DATA_FILE_EVENT"
	DeleteFolderEvent          EventType = "DELETE_FOLDER_EVENT"
	DeleteTopicEvent           EventType = "DELETE_TOPIC_EVENT"
	DeleteEventTypeEvent       EventType = "DELETE_EVENT_TYPE_EVENT"
	DeleteCollectionEvent      EventType = "DELETE_COLLECTION_EVENT"
	DeleteEngineEvent          EventType = "DELETE_DATA_ENGINE_EVENT"
)

var (
	// ErrMalformedEvent is returned when a message is not a JSON envelope.
	ErrMalformedEvent = errors.New("malformed in-topic event")

	// ErrUnknownEventType is returned for a missing or unsupported dataEngineEventType.
	ErrUnknownEventType = errors.New("unknown data engine event type")

	// ErrMissingPayload is returned when the envelope lacks the bean its event type needs.
	ErrMissingPayload = errors.New("event payload missing")
)

// Event is the in-topic envelope. The caller fields sit beside whichever payload
// field the event type carries, mirroring the HTTP request bodies.
type Event struct {
	Type               EventType `json:"dataEngineEventType"`
	UserID             string    `json:"userId"`
	ExternalSourceName string    `json:"externalSourceName,omitempty"`

	SoftwareServerCapability *metadata.SoftwareServerCapability `json:"softwareServerCapability,omitempty"`
	Process                  *metadata.Process                  `json:"process,omitempty"`
	PortImplementation       *metadata.PortImplementation       `json:"portImplementation,omitempty"`
	PortAlias                *metadata.PortAlias                `json:"portAlias,omitempty"`
	SchemaType               *metadata.SchemaType               `json:"schemaType,omitempty"`
	LineageMappings          []*metadata.LineageMapping         `json:"lineageMappings,omitempty"`
	ParentProcess            *metadata.ParentProcess            `json:"parentProcess,omitempty"`
	DataFlows                []*metadata.DataFlow               `json:"dataFlows,omitempty"`
	Database                 *metadata.Database                 `json:"database,omitempty"`
	DatabaseSchema           *metadata.DatabaseSchema           `json:"databaseSchema,omitempty"`
	RelationalTable          *metadata.RelationalTable          `json:"relationalTable,omitempty"`
	DataFile                 *metadata.DataFile                 `json:"dataFile,omitempty"`
	Folder                   *metadata.FileFolder               `json:"folder,omitempty"`
	Topic                    *metadata.Topic                    `json:"topic,omitempty"`
	EventType                *metadata.EventType                `json:"eventType,omitempty"`
	Collection               *metadata.Collection               `json:"collection,omitempty"`
	ProcessingState          *metadata.ProcessingState          `json:"processingState,omitempty"`

	ProcessQualifiedName        string `json:"processQualifiedName,omitempty"`
	ChildProcessQualifiedName   string `json:"childProcessQualifiedName,omitempty"`
	DatabaseQualifiedName       string `json:"databaseQualifiedName,omitempty"`
	DatabaseSchemaQualifiedName string `json:"databaseSchemaQualifiedName,omitempty"`
	TopicQualifiedName          string `json:"topicQualifiedName,omitempty"`

	QualifiedName  string                  `json:"qualifiedName,omitempty"`
	GUID           string                  `json:"guid,omitempty"`
	DeleteSemantic metadata.DeleteSemantic `json:"deleteSemantic,omitempty"`
}

// ParseEvent decodes a message value into an Event and checks its discriminator.
func ParseEvent(data []byte) (*Event, error) {
	var event Event

	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	event.Type = EventType(strings.ToUpper(strings.TrimSpace(string(event.Type))))

	if !event.Type.IsKnown() {
		return &event, fmt.Errorf("%w: %q", ErrUnknownEventType, event.Type)
	}

	return &event, nil
}

// IsKnown reports whether the consumer has a handler for t.
func (t EventType) IsKnown() bool {
	_, ok := handlers[t]

	return ok
}

// label is the metrics label for t. Unknown types share a single label.
func (t EventType) label() string {
	if t.IsKnown() {
		return string(t)
	}

	return "UNKNOWN"
}
