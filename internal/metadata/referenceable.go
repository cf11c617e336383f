package metadata

// Referenceable carries the fields every upserted bean shares.
type Referenceable struct {
	QualifiedName        string            `json:"qualifiedName"`
	AdditionalProperties map[string]string `json:"additionalProperties,omitempty"`
}

func (r Referenceable) properties() Properties {
	p := Properties{"qualifiedName": r.QualifiedName}
	p.putMap("additionalProperties", r.AdditionalProperties)

	return p
}

// Asset adds the descriptive fields of data-bearing entities.
type Asset struct {
	Referenceable
	DisplayName    string   `json:"displayName,omitempty"`
	Description    string   `json:"description,omitempty"`
	Owner          string   `json:"owner,omitempty"`
	ZoneMembership []string `json:"zoneMembership,omitempty"`
}

func (a Asset) properties() Properties {
	p := a.Referenceable.properties()
	p.putString("displayName", a.DisplayName)
	p.putString("description", a.Description)
	p.putString("owner", a.Owner)
	p.putStrings("zoneMembership", a.ZoneMembership)

	return p
}

// SoftwareServerCapability describes a registered external data engine.
type SoftwareServerCapability struct {
	Referenceable
	DisplayName   string `json:"displayName,omitempty"`
	Description   string `json:"description,omitempty"`
	EngineType    string `json:"engineType,omitempty"`
	EngineVersion string `json:"engineVersion,omitempty"`
	PatchLevel    string `json:"patchLevel,omitempty"`
	Source        string `json:"source,omitempty"`
	Vendor        string `json:"vendor,omitempty"`
}

// EntityProperties returns the stored properties of the engine.
func (s *SoftwareServerCapability) EntityProperties() Properties {
	p := s.Referenceable.properties()
	p.putString("displayName", s.DisplayName)
	p.putString("description", s.Description)
	p.putString("engineType", s.EngineType)
	p.putString("engineVersion", s.EngineVersion)
	p.putString("patchLevel", s.PatchLevel)
	p.putString("source", s.Source)
	p.putString("vendor", s.Vendor)

	return p
}

// ProcessingState maps engine-defined keys to the last sync time (epoch millis).
type ProcessingState struct {
	SyncDatesByKey map[string]int64 `json:"syncDatesByKey"`
}

// Collection groups processes.
type Collection struct {
	Referenceable
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// EntityProperties returns the stored properties of the collection.
func (c *Collection) EntityProperties() Properties {
	p := c.Referenceable.properties()
	p.putString("name", c.Name)
	p.putString("description", c.Description)

	return p
}

// FindRequest selects entities by GUID or qualified name, optionally narrowed by type.
type FindRequest struct {
	GUID          string `json:"guid,omitempty"`
	QualifiedName string `json:"qualifiedName,omitempty"`
	Type          string `json:"type,omitempty"`
}
