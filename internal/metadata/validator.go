package metadata

import (
	"fmt"
	"strings"
)

// Validator checks the parameters of data engine requests before any repository access.
// It only enforces structural rules; existence of referenced entities is checked by the handlers.
type Validator struct{}

// NewValidator creates a new Validator instance.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateCaller checks the identity every write carries.
func (v *Validator) ValidateCaller(userID, externalSourceName string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrMissingUserID
	}

	if strings.TrimSpace(externalSourceName) == "" {
		return ErrMissingExternalSource
	}

	return nil
}

// ValidateEngine validates an engine registration.
func (v *Validator) ValidateEngine(engine *SoftwareServerCapability) error {
	if engine == nil {
		return ErrNilBean
	}

	return requireQualifiedName("softwareServerCapability", engine.QualifiedName)
}

// ValidateSchemaType validates a schema type and its attributes.
func (v *Validator) ValidateSchemaType(schemaType *SchemaType) error {
	if schemaType == nil {
		return ErrNilBean
	}

	if err := requireQualifiedName("schemaType", schemaType.QualifiedName); err != nil {
		return err
	}

	return v.validateAttributes("schemaType.attributeList", schemaType.Attributes)
}

// ValidatePortImplementation validates a port implementation and its schema type.
func (v *Validator) ValidatePortImplementation(port *PortImplementation) error {
	if port == nil {
		return ErrNilBean
	}

	if err := v.validatePort("portImplementation", port.Port); err != nil {
		return err
	}

	if port.SchemaType != nil {
		return v.ValidateSchemaType(port.SchemaType)
	}

	return nil
}

// ValidatePortAlias validates a port alias.
func (v *Validator) ValidatePortAlias(port *PortAlias) error {
	if port == nil {
		return ErrNilBean
	}

	if err := v.validatePort("portAlias", port.Port); err != nil {
		return err
	}

	if port.DelegatesTo != "" && port.DelegatesTo == port.QualifiedName {
		return fmt.Errorf("%w: portAlias %s delegates to itself", ErrSelfReference, port.QualifiedName)
	}

	return nil
}

func (v *Validator) validatePort(kind string, port Port) error {
	if err := requireQualifiedName(kind, port.QualifiedName); err != nil {
		return err
	}

	if !port.PortType.IsValid() {
		return fmt.Errorf("%w: %s (valid: INPUT_PORT, OUTPUT_PORT, INOUT_PORT, OUTIN_PORT, OTHER)",
			ErrInvalidPortType, port.PortType)
	}

	return nil
}

// ValidateProcess validates a process together with every child it carries.
func (v *Validator) ValidateProcess(process *Process) error {
	if process == nil {
		return ErrNilBean
	}

	if err := requireQualifiedName("process", process.QualifiedName); err != nil {
		return err
	}

	if !process.UpdateSemantic.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidUpdateSemantic, process.UpdateSemantic)
	}

	seen := make(map[string]struct{}, len(process.PortImplementations)+len(process.PortAliases))

	for _, port := range process.PortImplementations {
		if err := v.ValidatePortImplementation(port); err != nil {
			return err
		}

		if err := markUnique(seen, port.QualifiedName); err != nil {
			return err
		}
	}

	for _, alias := range process.PortAliases {
		if err := v.ValidatePortAlias(alias); err != nil {
			return err
		}

		if err := markUnique(seen, alias.QualifiedName); err != nil {
			return err
		}
	}

	for _, mapping := range process.LineageMappings {
		if err := v.ValidateLineageMapping(mapping); err != nil {
			return err
		}
	}

	for _, parent := range process.ParentProcesses {
		if err := v.ValidateParentProcess(parent); err != nil {
			return err
		}

		if parent.QualifiedName == process.QualifiedName {
			return fmt.Errorf("%w: process %s is its own parent", ErrSelfReference, process.QualifiedName)
		}
	}

	return nil
}

// ValidateParentProcess validates a process hierarchy link.
func (v *Validator) ValidateParentProcess(parent *ParentProcess) error {
	if parent == nil {
		return ErrNilBean
	}

	if strings.TrimSpace(parent.QualifiedName) == "" {
		return ErrMissingParentName
	}

	if !parent.ProcessContainmentType.IsValid() {
		return fmt.Errorf("%w: %s (valid: OWNED, USED, OTHER)",
			ErrInvalidContainmentType, parent.ProcessContainmentType)
	}

	return nil
}

// ValidateLineageMapping validates a single attribute-to-attribute mapping.
func (v *Validator) ValidateLineageMapping(mapping *LineageMapping) error {
	if mapping == nil {
		return ErrNilBean
	}

	if strings.TrimSpace(mapping.SourceAttribute) == "" || strings.TrimSpace(mapping.TargetAttribute) == "" {
		return ErrMissingLineageEnd
	}

	if mapping.SourceAttribute == mapping.TargetAttribute {
		return fmt.Errorf("%w: %s", ErrSelfReference, mapping.SourceAttribute)
	}

	return nil
}

// ValidateDataFlow validates a single data flow.
func (v *Validator) ValidateDataFlow(flow *DataFlow) error {
	if flow == nil {
		return ErrNilBean
	}

	if strings.TrimSpace(flow.DataSupplier) == "" || strings.TrimSpace(flow.DataConsumer) == "" {
		return ErrMissingDataFlowEnd
	}

	if flow.DataSupplier == flow.DataConsumer {
		return fmt.Errorf("%w: %s", ErrSelfReference, flow.DataSupplier)
	}

	return nil
}

// ValidateDatabase validates a database and its optional nested schema.
func (v *Validator) ValidateDatabase(database *Database) error {
	if database == nil {
		return ErrNilBean
	}

	if err := requireQualifiedName("database", database.QualifiedName); err != nil {
		return err
	}

	if database.DatabaseSchema != nil {
		return v.ValidateDatabaseSchema(database.DatabaseSchema)
	}

	return nil
}

// ValidateDatabaseSchema validates a database schema and its tables.
func (v *Validator) ValidateDatabaseSchema(schema *DatabaseSchema) error {
	if schema == nil {
		return ErrNilBean
	}

	if err := requireQualifiedName("databaseSchema", schema.QualifiedName); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(schema.Tables))

	for _, table := range schema.Tables {
		if err := v.ValidateRelationalTable(table); err != nil {
			return err
		}

		if err := markUnique(seen, table.QualifiedName); err != nil {
			return err
		}
	}

	return nil
}

// ValidateRelationalTable validates a table and its columns.
func (v *Validator) ValidateRelationalTable(table *RelationalTable) error {
	if table == nil {
		return ErrNilBean
	}

	if err := requireQualifiedName("relationalTable", table.QualifiedName); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(table.Columns))

	for _, column := range table.Columns {
		if column == nil {
			return ErrNilBean
		}

		if err := requireQualifiedName("relationalColumn", column.QualifiedName); err != nil {
			return err
		}

		if err := markUnique(seen, column.QualifiedName); err != nil {
			return err
		}
	}

	return nil
}

// ValidateDataFile validates a data file and its columns.
func (v *Validator) ValidateDataFile(file *DataFile) error {
	if file == nil {
		return ErrNilBean
	}

	if err := requireQualifiedName("dataFile", file.QualifiedName); err != nil {
		return err
	}

	if strings.TrimSpace(file.PathName) == "" {
		return ErrMissingPathName
	}

	return v.validateAttributes("dataFile.columns", file.Columns)
}

// ValidateFolder validates a standalone folder.
func (v *Validator) ValidateFolder(folder *FileFolder) error {
	if folder == nil {
		return ErrNilBean
	}

	return requireQualifiedName("fileFolder", folder.QualifiedName)
}

// ValidateTopic validates a topic and its event types.
func (v *Validator) ValidateTopic(topic *Topic) error {
	if topic == nil {
		return ErrNilBean
	}

	if err := requireQualifiedName("topic", topic.QualifiedName); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(topic.EventTypes))

	for _, eventType := range topic.EventTypes {
		if err := v.ValidateEventType(eventType); err != nil {
			return err
		}

		if err := markUnique(seen, eventType.QualifiedName); err != nil {
			return err
		}
	}

	return nil
}

// ValidateEventType validates an event type and its attributes.
func (v *Validator) ValidateEventType(eventType *EventType) error {
	if eventType == nil {
		return ErrNilBean
	}

	if err := requireQualifiedName("eventType", eventType.QualifiedName); err != nil {
		return err
	}

	return v.validateAttributes("eventType.attributeList", eventType.Attributes)
}

// ValidateCollection validates a collection.
func (v *Validator) ValidateCollection(collection *Collection) error {
	if collection == nil {
		return ErrNilBean
	}

	return requireQualifiedName("collection", collection.QualifiedName)
}

// ValidateProcessingState validates a processing state report.
func (v *Validator) ValidateProcessingState(state *ProcessingState) error {
	if state == nil {
		return ErrNilBean
	}

	if len(state.SyncDatesByKey) == 0 {
		return ErrMissingProcessingStates
	}

	for key := range state.SyncDatesByKey {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("%w: empty key", ErrMissingProcessingStates)
		}
	}

	return nil
}

// ValidateFindRequest validates find criteria.
func (v *Validator) ValidateFindRequest(req *FindRequest) error {
	if req == nil {
		return ErrNilBean
	}

	if strings.TrimSpace(req.GUID) == "" && strings.TrimSpace(req.QualifiedName) == "" {
		return ErrMissingFindCriteria
	}

	if req.Type != "" && !IsEntityType(req.Type) {
		return fmt.Errorf("%w: %s", ErrUnknownType, req.Type)
	}

	return nil
}

// ValidateDelete validates the parameters of a delete by qualified name.
func (v *Validator) ValidateDelete(qualifiedName string, semantic DeleteSemantic) error {
	if strings.TrimSpace(qualifiedName) == "" {
		return ErrMissingQualifiedName
	}

	if !semantic.IsValid() {
		return fmt.Errorf("%w: %s (valid: SOFT, HARD)", ErrInvalidDeleteSemantic, semantic)
	}

	return nil
}

// ValidateStatus validates a requested process status. DELETED is reserved for deletes.
func (v *Validator) ValidateStatus(status InstanceStatus) error {
	if !status.IsValid() || status == StatusDeleted {
		return fmt.Errorf("%w: %s (valid: DRAFT, ACTIVE)", ErrInvalidStatus, status)
	}

	return nil
}

func (v *Validator) validateAttributes(kind string, attributes []*Attribute) error {
	seen := make(map[string]struct{}, len(attributes))

	for _, attribute := range attributes {
		if attribute == nil {
			return ErrNilBean
		}

		if err := requireQualifiedName(kind, attribute.QualifiedName); err != nil {
			return err
		}

		if err := markUnique(seen, attribute.QualifiedName); err != nil {
			return err
		}
	}

	return nil
}

func requireQualifiedName(kind, qualifiedName string) error {
	if strings.TrimSpace(qualifiedName) == "" {
		return fmt.Errorf("%w: %s", ErrMissingQualifiedName, kind)
	}

	return nil
}

func markUnique(seen map[string]struct{}, qualifiedName string) error {
	if _, ok := seen[qualifiedName]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateChild, qualifiedName)
	}

	seen[qualifiedName] = struct{}{}

	return nil
}
