package dataengine

import (
	"context"
	"strings"

	"go.uber.org/multierr"

	"github.com/correlator-io/dataengine/internal/metadata"
)

// UpsertProcess upserts a process with its ports, lineage mappings and parents.
//
// A new process stays DRAFT while its children are linked and is published as ACTIVE
// once everything succeeded. With UpdateSemantic REPLACE, ports of the process that
// are not in the request are deleted; APPEND (the default) keeps them.
func (s *Service) UpsertProcess(
	ctx context.Context,
	userID, externalSourceName string,
	process *metadata.Process,
) (UpsertResult, error) {
	const operation = "upsert_process"

	if err := s.validator.ValidateProcess(process); err != nil {
		return UpsertResult{}, s.fail(ctx, operation, err)
	}

	var result UpsertResult

	err := s.write(ctx, operation, userID, externalSourceName, func(ctx context.Context, u *unit) error {
		var err error

		result, err = u.upsert(ctx, entitySpec{
			typeName:      metadata.TypeProcess,
			qualifiedName: process.QualifiedName,
			properties:    process.EntityProperties(),
			createStatus:  metadata.StatusDraft,
		})
		if err != nil {
			return err
		}

		ports := make(map[string]struct{}, len(process.PortImplementations)+len(process.PortAliases))

		for _, port := range process.PortImplementations {
			portResult, err := u.upsertPortImplementation(ctx, port, result.GUID)
			if err != nil {
				return err
			}

			ports[portResult.GUID] = struct{}{}
		}

		for _, alias := range process.PortAliases {
			aliasResult, err := u.upsertPortAlias(ctx, alias, result.GUID)
			if err != nil {
				return err
			}

			ports[aliasResult.GUID] = struct{}{}
		}

		if process.UpdateSemantic == metadata.UpdateReplace {
			if err := u.prune(ctx, metadata.RelProcessPort, result.GUID, ports, metadata.DeleteSoft); err != nil {
				return err
			}
		}

		for _, mapping := range process.LineageMappings {
			if err := u.addLineageMapping(ctx, mapping); err != nil {
				return err
			}
		}

		for _, parent := range process.ParentProcesses {
			if err := u.addProcessHierarchy(ctx, parent, result.GUID); err != nil {
				return err
			}
		}

		return u.publish(ctx, result.GUID)
	})
	if err != nil {
		return UpsertResult{}, err
	}

	return result, nil
}

// UpdateProcessStatus moves a process between DRAFT and ACTIVE.
func (s *Service) UpdateProcessStatus(
	ctx context.Context,
	userID, externalSourceName, processQualifiedName string,
	status metadata.InstanceStatus,
) error {
	const operation = "update_process_status"

	if strings.TrimSpace(processQualifiedName) == "" {
		return s.fail(ctx, operation, metadata.ErrMissingQualifiedName)
	}

	if err := s.validator.ValidateStatus(status); err != nil {
		return s.fail(ctx, operation, err)
	}

	return s.write(ctx, operation, userID, externalSourceName, func(ctx context.Context, u *unit) error {
		process, err := u.findOwned(ctx, metadata.TypeProcess, processQualifiedName)
		if err != nil {
			return err
		}

		if process.Status == status {
			return nil
		}

		return u.repo.UpdateEntityStatus(ctx, process.GUID, status)
	})
}

// DeleteProcess deletes a process and the ports it owns. Every port is attempted;
// the failures are reported together and nothing is committed.
func (s *Service) DeleteProcess(
	ctx context.Context,
	userID, externalSourceName, qualifiedName string,
	semantic metadata.DeleteSemantic,
) error {
	const operation = "delete_process"

	if err := s.validator.ValidateDelete(qualifiedName, semantic); err != nil {
		return s.fail(ctx, operation, err)
	}

	semantic = semantic.OrDefault()

	return s.write(ctx, operation, userID, externalSourceName, func(ctx context.Context, u *unit) error {
		process, err := u.findOwned(ctx, metadata.TypeProcess, qualifiedName)
		if err != nil {
			return err
		}

		rels, err := u.repo.ListRelationships(ctx, metadata.RelationshipFilter{
			TypeName: metadata.RelProcessPort,
			End1GUID: process.GUID,
		})
		if err != nil {
			return err
		}

		visited := map[string]struct{}{process.GUID: {}}

		var errs error

		for _, rel := range rels {
			port, err := u.repo.GetEntity(ctx, rel.End2GUID)
			if err != nil {
				errs = multierr.Append(errs, err)

				continue
			}

			if !u.owns(port) {
				continue
			}

			errs = multierr.Append(errs, u.delete(ctx, port, semantic, visited))
		}

		if errs != nil {
			return errs
		}

		if err := u.repo.DeleteEntity(ctx, process.GUID, semantic); err != nil {
			return err
		}

		u.deletes = append(u.deletes, process.TypeName)

		return nil
	})
}

// publish makes a DRAFT process ACTIVE.
func (u *unit) publish(ctx context.Context, processGUID string) error {
	process, err := u.repo.GetEntity(ctx, processGUID)
	if err != nil {
		return err
	}

	if process.Status == metadata.StatusActive {
		return nil
	}

	return u.repo.UpdateEntityStatus(ctx, processGUID, metadata.StatusActive)
}
