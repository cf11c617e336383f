package dataengine

import (
	"context"
	"strings"

	"github.com/correlator-io/dataengine/internal/metadata"
)

// AddProcessHierarchy links a parent process to the process childQualifiedName.
// An existing link is updated when the containment type changed.
func (s *Service) AddProcessHierarchy(
	ctx context.Context,
	userID, externalSourceName string,
	parent *metadata.ParentProcess,
	childQualifiedName string,
) error {
	const operation = "add_process_hierarchy"

	if err := s.validator.ValidateParentProcess(parent); err != nil {
		return s.fail(ctx, operation, err)
	}

	if strings.TrimSpace(childQualifiedName) == "" {
		return s.fail(ctx, operation, metadata.ErrMissingQualifiedName)
	}

	return s.write(ctx, operation, userID, externalSourceName, func(ctx context.Context, u *unit) error {
		child, err := u.find(ctx, metadata.TypeProcess, childQualifiedName)
		if err != nil {
			return err
		}

		return u.addProcessHierarchy(ctx, parent, child.GUID)
	})
}

// AddLineageMappings links source attributes to target attributes. Existing mappings
// are left alone, so repeating a request is harmless.
func (s *Service) AddLineageMappings(
	ctx context.Context,
	userID, externalSourceName string,
	mappings []*metadata.LineageMapping,
) error {
	const operation = "add_lineage_mappings"

	for _, mapping := range mappings {
		if err := s.validator.ValidateLineageMapping(mapping); err != nil {
			return s.fail(ctx, operation, err)
		}
	}

	return s.write(ctx, operation, userID, externalSourceName, func(ctx context.Context, u *unit) error {
		for _, mapping := range mappings {
			if err := u.addLineageMapping(ctx, mapping); err != nil {
				return err
			}
		}

		return nil
	})
}

// AddDataFlows links data suppliers to data consumers. Both ends may be any entity.
func (s *Service) AddDataFlows(
	ctx context.Context,
	userID, externalSourceName string,
	flows []*metadata.DataFlow,
) error {
	const operation = "add_data_flows"

	for _, flow := range flows {
		if err := s.validator.ValidateDataFlow(flow); err != nil {
			return s.fail(ctx, operation, err)
		}
	}

	return s.write(ctx, operation, userID, externalSourceName, func(ctx context.Context, u *unit) error {
		for _, flow := range flows {
			supplier, err := u.findReference(ctx, metadata.TypeReferenceable, flow.DataSupplier)
			if err != nil {
				return err
			}

			consumer, err := u.findReference(ctx, metadata.TypeReferenceable, flow.DataConsumer)
			if err != nil {
				return err
			}

			if supplier.GUID == consumer.GUID {
				return metadata.ErrSelfReference
			}

			if err := u.link(ctx, metadata.RelDataFlow, supplier.GUID, consumer.GUID,
				flow.RelationshipProperties()); err != nil {
				return err
			}
		}

		return nil
	})
}

func (u *unit) addProcessHierarchy(ctx context.Context, parent *metadata.ParentProcess, childGUID string) error {
	parentProcess, err := u.findReference(ctx, metadata.TypeProcess, parent.QualifiedName)
	if err != nil {
		return err
	}

	if parentProcess.GUID == childGUID {
		return metadata.ErrSelfReference
	}

	return u.link(ctx, metadata.RelProcessHierarchy, parentProcess.GUID, childGUID, metadata.Properties{
		"containmentType": string(parent.ProcessContainmentType),
	})
}

func (u *unit) addLineageMapping(ctx context.Context, mapping *metadata.LineageMapping) error {
	source, err := u.findReference(ctx, metadata.TypeReferenceable, mapping.SourceAttribute)
	if err != nil {
		return err
	}

	target, err := u.findReference(ctx, metadata.TypeReferenceable, mapping.TargetAttribute)
	if err != nil {
		return err
	}

	if source.GUID == target.GUID {
		return metadata.ErrSelfReference
	}

	return u.link(ctx, metadata.RelLineageMapping, source.GUID, target.GUID, nil)
}
