package metadata

import "slices"

// Entity type names known to the service.
const (
	TypeSoftwareServerCapability = "SoftwareServerCapability"
	TypeProcess                  = "Process"
	TypePortImplementation       = "PortImplementation"
	TypePortAlias                = "PortAlias"
	TypeSchemaType               = "SchemaType"
	TypeTabularColumn            = "TabularColumn"
	TypeDatabase                 = "Database"
	TypeDeployedDatabaseSchema   = "DeployedDatabaseSchema"
	TypeRelationalTable          = "RelationalTable"
	TypeRelationalColumn         = "RelationalColumn"
	TypeDataFile                 = "DataFile"
	TypeFileFolder               = "FileFolder"
	TypeConnection               = "Connection"
	TypeEndpoint                 = "Endpoint"
	TypeTopic                    = "Topic"
	TypeEventType                = "EventType"
	TypeCollection               = "Collection"
)

// Abstract type names. They are never stored, only used to widen lookups.
const (
	TypePort            = "Port"
	TypeSchemaAttribute = "SchemaAttribute"
	TypeAsset           = "Asset"
	TypeReferenceable   = "Referenceable"
)

// Relationship type names known to the service.
const (
	RelProcessPort           = "ProcessPort"
	RelPortDelegation        = "PortDelegation"
	RelPortSchema            = "PortSchema"
	RelAttributeForSchema    = "AttributeForSchema"
	RelNestedSchemaAttribute = "NestedSchemaAttribute"
	RelLineageMapping        = "LineageMapping"
	RelDataFlow              = "DataFlow"
	RelProcessHierarchy      = "ProcessHierarchy"
	RelDataContentForDataSet = "DataContentForDataSet"
	RelAssetSchemaType       = "AssetSchemaType"
	RelNestedFile            = "NestedFile"
	RelFolderHierarchy       = "FolderHierarchy"
	RelConnectionEndpoint    = "ConnectionEndpoint"
	RelConnectionToAsset     = "ConnectionToAsset"
	RelSchemaTypeOption      = "SchemaTypeOption"
	RelCollectionMembership  = "CollectionMembership"
)

// ClassificationProcessingState holds the sync timestamps reported by an external engine.
const ClassificationProcessingState = "ProcessingState"

var abstractTypes = map[string][]string{
	TypePort:            {TypePortImplementation, TypePortAlias},
	TypeSchemaAttribute: {TypeTabularColumn, TypeRelationalColumn, TypeRelationalTable},
	TypeAsset: {
		TypeProcess, TypeDatabase, TypeDeployedDatabaseSchema, TypeDataFile,
		TypeFileFolder, TypeTopic, TypeConnection,
	},
}

var entityTypes = []string{
	TypeSoftwareServerCapability, TypeProcess, TypePortImplementation, TypePortAlias,
	TypeSchemaType, TypeTabularColumn, TypeDatabase, TypeDeployedDatabaseSchema,
	TypeRelationalTable, TypeRelationalColumn, TypeDataFile, TypeFileFolder,
	TypeConnection, TypeEndpoint, TypeTopic, TypeEventType, TypeCollection,
}

// SubTypes expands typeName into the concrete entity types it matches.
// An empty name or Referenceable matches every type and yields nil.
// Unknown names are returned as-is so lookups simply find nothing.
func SubTypes(typeName string) []string {
	if typeName == "" || typeName == TypeReferenceable {
		return nil
	}

	if subs, ok := abstractTypes[typeName]; ok {
		return slices.Clone(subs)
	}

	return []string{typeName}
}

// IsEntityType reports whether typeName is a concrete or abstract entity type.
func IsEntityType(typeName string) bool {
	if typeName == TypeReferenceable {
		return true
	}

	if _, ok := abstractTypes[typeName]; ok {
		return true
	}

	return slices.Contains(entityTypes, typeName)
}

// IsA reports whether concrete type typeName satisfies wanted.
func IsA(typeName, wanted string) bool {
	matches := SubTypes(wanted)

	return matches == nil || slices.Contains(matches, typeName)
}
