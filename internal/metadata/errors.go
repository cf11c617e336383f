package metadata

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by repositories and handlers.
var (
	ErrEntityNotFound         = errors.New("entity not found")
	ErrRelationshipNotFound   = errors.New("relationship not found")
	ErrDuplicateRelationship  = errors.New("relationship already exists between these entities")
	ErrRepositoryUnavailable  = errors.New("metadata repository unavailable")
	ErrDuplicateQualifiedName = errors.New("an entity with this qualifiedName already exists")
	ErrNotOwner               = errors.New("instance is owned by a different external source")
	ErrTypeMismatch           = errors.New("entity type does not match")
	ErrUnknownExternalSource  = errors.New("external source is not registered")
	ErrInvalidParameter       = errors.New("invalid parameter")
)

// Validation errors. All of them match ErrInvalidParameter with errors.Is.
var (
	ErrNilBean                 = fmt.Errorf("%w: request body is empty", ErrInvalidParameter)
	ErrMissingQualifiedName    = fmt.Errorf("%w: qualifiedName is required", ErrInvalidParameter)
	ErrMissingUserID           = fmt.Errorf("%w: userId is required", ErrInvalidParameter)
	ErrMissingExternalSource   = fmt.Errorf("%w: externalSourceName is required", ErrInvalidParameter)
	ErrMissingParentName       = fmt.Errorf("%w: parent qualifiedName is required", ErrInvalidParameter)
	ErrInvalidPortType         = fmt.Errorf("%w: invalid portType", ErrInvalidParameter)
	ErrInvalidUpdateSemantic   = fmt.Errorf("%w: invalid updateSemantic", ErrInvalidParameter)
	ErrInvalidDeleteSemantic   = fmt.Errorf("%w: invalid deleteSemantic", ErrInvalidParameter)
	ErrInvalidContainmentType  = fmt.Errorf("%w: invalid processContainmentType", ErrInvalidParameter)
	ErrInvalidStatus           = fmt.Errorf("%w: invalid status", ErrInvalidParameter)
	ErrMissingPathName         = fmt.Errorf("%w: pathName is required", ErrInvalidParameter)
	ErrMissingLineageEnd       = fmt.Errorf("%w: sourceAttribute and targetAttribute are required", ErrInvalidParameter)
	ErrMissingDataFlowEnd      = fmt.Errorf("%w: dataSupplier and dataConsumer are required", ErrInvalidParameter)
	ErrSelfReference           = fmt.Errorf("%w: an instance cannot be linked to itself", ErrInvalidParameter)
	ErrMissingFindCriteria     = fmt.Errorf("%w: guid or qualifiedName is required", ErrInvalidParameter)
	ErrUnknownType             = fmt.Errorf("%w: unknown type", ErrInvalidParameter)
	ErrDuplicateChild          = fmt.Errorf("%w: duplicate qualifiedName in request", ErrInvalidParameter)
	ErrMissingProcessingStates = fmt.Errorf("%w: syncDatesByKey is required", ErrInvalidParameter)
)
