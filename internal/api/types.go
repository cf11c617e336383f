package api

import (
	"net/http"
	"time"

	"github.com/correlator-io/dataengine/internal/metadata"
)

type (
	// RequestBody identifies the caller of a write. UserID is only read when
	// authentication is disabled; otherwise the API key's client ID is used.
	RequestBody struct {
		UserID             string `json:"userId,omitempty"`
		ExternalSourceName string `json:"externalSourceName,omitempty"`
	}

	// RegistrationRequestBody registers an external data engine.
	RegistrationRequestBody struct {
		RequestBody
		SoftwareServerCapability *metadata.SoftwareServerCapability `json:"softwareServerCapability"`
	}

	SchemaTypeRequestBody struct {
		RequestBody
		SchemaType *metadata.SchemaType `json:"schemaType"`
	}

	PortImplementationRequestBody struct {
		RequestBody
		ProcessQualifiedName string                       `json:"processQualifiedName"`
		PortImplementation   *metadata.PortImplementation `json:"portImplementation"`
	}

	PortAliasRequestBody struct {
		RequestBody
		ProcessQualifiedName string              `json:"processQualifiedName"`
		PortAlias            *metadata.PortAlias `json:"portAlias"`
	}

	ProcessRequestBody struct {
		RequestBody
		Process *metadata.Process `json:"process"`
	}

	ProcessStatusRequestBody struct {
		RequestBody
		ProcessQualifiedName string                  `json:"processQualifiedName"`
		ProcessStatus        metadata.InstanceStatus `json:"processStatus"`
	}

	ProcessHierarchyRequestBody struct {
		RequestBody
		ParentProcess             *metadata.ParentProcess `json:"parentProcess"`
		ChildProcessQualifiedName string                  `json:"childProcessQualifiedName"`
	}

	LineageMappingsRequestBody struct {
		RequestBody
		LineageMappings []*metadata.LineageMapping `json:"lineageMappings"`
	}

	DataFlowsRequestBody struct {
		RequestBody
		DataFlows []*metadata.DataFlow `json:"dataFlows"`
	}

	DatabaseRequestBody struct {
		RequestBody
		Database *metadata.Database `json:"database"`
	}

	DatabaseSchemaRequestBody struct {
		RequestBody
		DatabaseQualifiedName string                   `json:"databaseQualifiedName"`
		DatabaseSchema        *metadata.DatabaseSchema `json:"databaseSchema"`
	}

	RelationalTableRequestBody struct {
		RequestBody
		DatabaseSchemaQualifiedName string                    `json:"databaseSchemaQualifiedName"`
		RelationalTable             *metadata.RelationalTable `json:"relationalTable"`
	}

	DataFileRequestBody struct {
		RequestBody
		DataFile *metadata.DataFile `json:"dataFile"`
	}

	FolderRequestBody struct {
		RequestBody
		Folder *metadata.FileFolder `json:"folder"`
	}

	TopicRequestBody struct {
		RequestBody
		Topic *metadata.Topic `json:"topic"`
	}

	EventTypeRequestBody struct {
		RequestBody
		TopicQualifiedName string              `json:"topicQualifiedName"`
		EventType          *metadata.EventType `json:"eventType"`
	}

	CollectionRequestBody struct {
		RequestBody
		Collection *metadata.Collection `json:"collection"`
	}

	CollectionMemberRequestBody struct {
		RequestBody
		CollectionQualifiedName string `json:"collectionQualifiedName"`
		MemberQualifiedName     string `json:"memberQualifiedName"`
	}

	ProcessingStateRequestBody struct {
		RequestBody
		ProcessingState *metadata.ProcessingState `json:"processingState"`
	}

	// DeleteRequestBody addresses the instance to delete by qualified name. GUID is only
	// used when deleting a registration.
	DeleteRequestBody struct {
		RequestBody
		QualifiedName  string                  `json:"qualifiedName"`
		GUID           string                  `json:"guid,omitempty"`
		DeleteSemantic metadata.DeleteSemantic `json:"deleteSemantic,omitempty"`
	}

	// GUIDResponse answers lookups that return a single GUID.
	GUIDResponse struct {
		GUID string `json:"guid"`
	}

	// EntitiesResponse answers find requests.
	EntitiesResponse struct {
		Entities []*metadata.Entity `json:"entities"`
	}

	// RelationshipsResponse lists the relationships of an entity.
	RelationshipsResponse struct {
		Relationships []*metadata.Relationship `json:"relationships"`
	}

	// HealthStatus represents the health check response structure.
	HealthStatus struct {
		Status      string `json:"status"`
		ServiceName string `json:"serviceName"`
		Version     string `json:"version"`
		Uptime      string `json:"uptime,omitempty"`
	}

	// Route represents an HTTP route configuration with a path and handler.
	Route struct {
		Path    string
		Handler http.HandlerFunc
	}
)

// uptime formats the time elapsed since start, or "" when the server has not started.
func uptime(start time.Time) string {
	if start.IsZero() {
		return ""
	}

	return time.Since(start).Round(time.Second).String()
}
