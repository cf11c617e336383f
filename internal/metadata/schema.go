package metadata

// SchemaType describes the structure of the data at a port, in a file or in an event.
type SchemaType struct {
	Referenceable
	DisplayName      string       `json:"displayName,omitempty"`
	Author           string       `json:"author,omitempty"`
	Usage            string       `json:"usage,omitempty"`
	EncodingStandard string       `json:"encodingStandard,omitempty"`
	VersionNumber    string       `json:"versionNumber,omitempty"`
	Attributes       []*Attribute `json:"attributeList,omitempty"`
}

// EntityProperties returns the stored properties of the schema type (attributes excluded).
func (s *SchemaType) EntityProperties() Properties {
	p := s.Referenceable.properties()
	p.putString("displayName", s.DisplayName)
	p.putString("author", s.Author)
	p.putString("usage", s.Usage)
	p.putString("encodingStandard", s.EncodingStandard)
	p.putString("versionNumber", s.VersionNumber)

	return p
}

// Attribute is a field of a schema: a tabular column, an event field or a table column.
type Attribute struct {
	Referenceable
	DisplayName  string `json:"displayName,omitempty"`
	Description  string `json:"description,omitempty"`
	Position     int    `json:"position,omitempty"`
	DataType     string `json:"dataType,omitempty"`
	DefaultValue string `json:"defaultValue,omitempty"`
	Length       int    `json:"length,omitempty"`
	Precision    int    `json:"precision,omitempty"`
	IsNullable   bool   `json:"isNullable,omitempty"`
	NativeClass  string `json:"nativeClass,omitempty"`
}

// EntityProperties returns the stored properties of the attribute.
func (a *Attribute) EntityProperties() Properties {
	p := a.Referenceable.properties()
	p.putString("displayName", a.DisplayName)
	p.putString("description", a.Description)
	p.putInt("position", a.Position)
	p.putString("dataType", a.DataType)
	p.putString("defaultValue", a.DefaultValue)
	p.putInt("length", a.Length)
	p.putInt("precision", a.Precision)
	p.putBool("isNullable", a.IsNullable)
	p.putString("nativeClass", a.NativeClass)

	return p
}
