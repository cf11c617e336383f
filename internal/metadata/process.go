package metadata

// PortType describes the direction of data through a port.
type PortType string

const (
	PortTypeInput  PortType = "INPUT_PORT"
	PortTypeOutput PortType = "OUTPUT_PORT"
	PortTypeInOut  PortType = "INOUT_PORT"
	PortTypeOutIn  PortType = "OUTIN_PORT"
	PortTypeOther  PortType = "OTHER"
)

// IsValid reports whether t is a known port type. Empty is allowed.
func (t PortType) IsValid() bool {
	switch t {
	case "", PortTypeInput, PortTypeOutput, PortTypeInOut, PortTypeOutIn, PortTypeOther:
		return true
	default:
		return false
	}
}

// UpdateSemantic controls what happens to existing child links on update.
// REPLACE detaches children that are not in the request, APPEND keeps them.
type UpdateSemantic string

const (
	UpdateReplace UpdateSemantic = "REPLACE"
	UpdateAppend  UpdateSemantic = "APPEND"
)

// IsValid reports whether u is a known update semantic. Empty means APPEND.
func (u UpdateSemantic) IsValid() bool {
	return u == "" || u == UpdateReplace || u == UpdateAppend
}

// ProcessContainmentType qualifies a parent/child process link.
type ProcessContainmentType string

const (
	ContainmentOwned ProcessContainmentType = "OWNED"
	ContainmentUsed  ProcessContainmentType = "USED"
	ContainmentOther ProcessContainmentType = "OTHER"
)

// IsValid reports whether c is a known containment type.
func (c ProcessContainmentType) IsValid() bool {
	switch c {
	case ContainmentOwned, ContainmentUsed, ContainmentOther:
		return true
	default:
		return false
	}
}

// Process is a unit of data transformation reported by an engine, together with the
// ports, lineage and hierarchy it should be linked to.
type Process struct {
	Asset
	Name                   string                `json:"name,omitempty"`
	Formula                string                `json:"formula,omitempty"`
	ImplementationLanguage string                `json:"implementationLanguage,omitempty"`
	PortImplementations    []*PortImplementation `json:"portImplementations,omitempty"`
	PortAliases            []*PortAlias          `json:"portAliases,omitempty"`
	LineageMappings        []*LineageMapping     `json:"lineageMappings,omitempty"`
	ParentProcesses        []*ParentProcess      `json:"parentProcesses,omitempty"`
	UpdateSemantic         UpdateSemantic        `json:"updateSemantic,omitempty"`
}

// EntityProperties returns the stored properties of the process itself (children excluded).
func (p *Process) EntityProperties() Properties {
	props := p.Asset.properties()
	props.putString("name", p.Name)
	props.putString("formula", p.Formula)
	props.putString("implementationLanguage", p.ImplementationLanguage)

	return props
}

// Port is the shared part of port implementations and aliases.
type Port struct {
	Referenceable
	DisplayName string   `json:"displayName,omitempty"`
	PortType    PortType `json:"portType,omitempty"`
}

func (p Port) properties() Properties {
	props := p.Referenceable.properties()
	props.putString("displayName", p.DisplayName)
	props.putString("portType", string(p.PortType))

	return props
}

// PortImplementation is a concrete port with an optional schema.
type PortImplementation struct {
	Port
	SchemaType *SchemaType `json:"schemaType,omitempty"`
}

// EntityProperties returns the stored properties of the port.
func (p *PortImplementation) EntityProperties() Properties {
	return p.Port.properties()
}

// PortAlias exposes another port (usually of a child process) on its own process.
type PortAlias struct {
	Port
	DelegatesTo string `json:"delegatesTo,omitempty"`
}

// EntityProperties returns the stored properties of the alias.
func (p *PortAlias) EntityProperties() Properties {
	return p.Port.properties()
}

// LineageMapping links a source schema attribute to a target schema attribute.
type LineageMapping struct {
	SourceAttribute string `json:"sourceAttribute"`
	TargetAttribute string `json:"targetAttribute"`
}

// ParentProcess names the parent of a process and how the child is contained.
type ParentProcess struct {
	QualifiedName          string                 `json:"qualifiedName"`
	ProcessContainmentType ProcessContainmentType `json:"processContainmentType"`
}

// DataFlow links a data supplier to a data consumer (any two entities).
type DataFlow struct {
	DataSupplier string `json:"dataSupplier"`
	DataConsumer string `json:"dataConsumer"`
	Formula      string `json:"formula,omitempty"`
	Description  string `json:"description,omitempty"`
}

// RelationshipProperties returns the stored properties of the flow link.
func (d *DataFlow) RelationshipProperties() Properties {
	p := Properties{}
	p.putString("formula", d.Formula)
	p.putString("description", d.Description)

	return p
}
