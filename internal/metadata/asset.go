package metadata

// Database is a deployed database, optionally reported with one nested schema.
type Database struct {
	Asset
	DatabaseType         string          `json:"databaseType,omitempty"`
	DatabaseVersion      string          `json:"databaseVersion,omitempty"`
	DatabaseInstance     string          `json:"databaseInstance,omitempty"`
	DatabaseImportedFrom string          `json:"databaseImportedFrom,omitempty"`
	NetworkAddress       string          `json:"networkAddress,omitempty"`
	Protocol             string          `json:"protocol,omitempty"`
	DatabaseSchema       *DatabaseSchema `json:"databaseSchema,omitempty"`
}

// EntityProperties returns the stored properties of the database (children excluded).
func (d *Database) EntityProperties() Properties {
	p := d.Asset.properties()
	p.putString("databaseType", d.DatabaseType)
	p.putString("databaseVersion", d.DatabaseVersion)
	p.putString("databaseInstance", d.DatabaseInstance)
	p.putString("databaseImportedFrom", d.DatabaseImportedFrom)

	return p
}

// DatabaseSchema is a schema deployed within a database.
type DatabaseSchema struct {
	Asset
	Tables []*RelationalTable `json:"tables,omitempty"`
}

// EntityProperties returns the stored properties of the schema (tables excluded).
func (d *DatabaseSchema) EntityProperties() Properties {
	return d.Asset.properties()
}

// RelationalTable is a table within a database schema.
type RelationalTable struct {
	Referenceable
	DisplayName string              `json:"displayName,omitempty"`
	Description string              `json:"description,omitempty"`
	Columns     []*RelationalColumn `json:"columns,omitempty"`
}

// EntityProperties returns the stored properties of the table (columns excluded).
func (t *RelationalTable) EntityProperties() Properties {
	p := t.Referenceable.properties()
	p.putString("displayName", t.DisplayName)
	p.putString("description", t.Description)

	return p
}

// RelationalColumn is a table column.
type RelationalColumn struct {
	Attribute
	PrimaryKeyName string `json:"primaryKeyName,omitempty"`
}

// EntityProperties returns the stored properties of the column.
func (c *RelationalColumn) EntityProperties() Properties {
	p := c.Attribute.EntityProperties()
	p.putString("primaryKeyName", c.PrimaryKeyName)

	return p
}

// DataFile is a file reported by path. Its folder chain is derived from PathName.
type DataFile struct {
	Asset
	FileType       string       `json:"fileType,omitempty"`
	PathName       string       `json:"pathName"`
	Columns        []*Attribute `json:"columns,omitempty"`
	NetworkAddress string       `json:"networkAddress,omitempty"`
	Protocol       string       `json:"protocol,omitempty"`
}

// EntityProperties returns the stored properties of the file (columns excluded).
func (f *DataFile) EntityProperties() Properties {
	p := f.Asset.properties()
	p.putString("fileType", f.FileType)
	p.putString("pathName", f.PathName)

	return p
}

// FileFolder is a directory.
type FileFolder struct {
	Asset
	PathName string `json:"pathName,omitempty"`
}

// EntityProperties returns the stored properties of the folder.
func (f *FileFolder) EntityProperties() Properties {
	p := f.Asset.properties()
	p.putString("pathName", f.PathName)

	return p
}

// Topic is a message topic carrying one or more event types.
type Topic struct {
	Asset
	TopicType  string       `json:"topicType,omitempty"`
	EventTypes []*EventType `json:"eventTypes,omitempty"`
}

// EntityProperties returns the stored properties of the topic (event types excluded).
func (t *Topic) EntityProperties() Properties {
	p := t.Asset.properties()
	p.putString("topicType", t.TopicType)

	return p
}

// EventType is the schema of an event carried by a topic.
type EventType struct {
	Referenceable
	DisplayName string       `json:"displayName,omitempty"`
	Description string       `json:"description,omitempty"`
	Attributes  []*Attribute `json:"attributeList,omitempty"`
}

// EntityProperties returns the stored properties of the event type (attributes excluded).
func (e *EventType) EntityProperties() Properties {
	p := e.Referenceable.properties()
	p.putString("displayName", e.DisplayName)
	p.putString("description", e.Description)

	return p
}
