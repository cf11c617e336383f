package dataengine

import (
	"context"
	"strings"

	"github.com/correlator-io/dataengine/internal/metadata"
)

// UpsertCollection upserts a collection.
func (s *Service) UpsertCollection(
	ctx context.Context,
	userID, externalSourceName string,
	collection *metadata.Collection,
) (UpsertResult, error) {
	const operation = "upsert_collection"

	if err := s.validator.ValidateCollection(collection); err != nil {
		return UpsertResult{}, s.fail(ctx, operation, err)
	}

	var result UpsertResult

	err := s.write(ctx, operation, userID, externalSourceName, func(ctx context.Context, u *unit) error {
		var err error

		result, err = u.upsert(ctx, entitySpec{
			typeName:      metadata.TypeCollection,
			qualifiedName: collection.QualifiedName,
			properties:    collection.EntityProperties(),
		})

		return err
	})
	if err != nil {
		return UpsertResult{}, err
	}

	return result, nil
}

// AddToCollection makes the entity memberQualifiedName a member of a collection.
func (s *Service) AddToCollection(
	ctx context.Context,
	userID, externalSourceName, collectionQualifiedName, memberQualifiedName string,
) error {
	const operation = "add_to_collection"

	if strings.TrimSpace(collectionQualifiedName) == "" {
		return s.fail(ctx, operation, metadata.ErrMissingParentName)
	}

	if strings.TrimSpace(memberQualifiedName) == "" {
		return s.fail(ctx, operation, metadata.ErrMissingQualifiedName)
	}

	return s.write(ctx, operation, userID, externalSourceName, func(ctx context.Context, u *unit) error {
		collection, err := u.find(ctx, metadata.TypeCollection, collectionQualifiedName)
		if err != nil {
			return err
		}

		member, err := u.findReference(ctx, metadata.TypeReferenceable, memberQualifiedName)
		if err != nil {
			return err
		}

		if member.GUID == collection.GUID {
			return metadata.ErrSelfReference
		}

		return u.link(ctx, metadata.RelCollectionMembership, collection.GUID, member.GUID, nil)
	})
}

// DeleteCollection deletes a collection. Its members stay.
func (s *Service) DeleteCollection(
	ctx context.Context,
	userID, externalSourceName, qualifiedName string,
	semantic metadata.DeleteSemantic,
) error {
	return s.deleteEntity(ctx, "delete_collection", userID, externalSourceName,
		metadata.TypeCollection, qualifiedName, semantic)
}

// deleteEntity validates and runs a delete by qualified name.
func (s *Service) deleteEntity(
	ctx context.Context,
	operation, userID, externalSourceName, typeName, qualifiedName string,
	semantic metadata.DeleteSemantic,
) error {
	if err := s.validator.ValidateDelete(qualifiedName, semantic); err != nil {
		return s.fail(ctx, operation, err)
	}

	return s.write(ctx, operation, userID, externalSourceName, func(ctx context.Context, u *unit) error {
		return u.deleteByName(ctx, typeName, qualifiedName, semantic)
	})
}
