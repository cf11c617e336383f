package dataengine

import (
	"context"

	"github.com/correlator-io/dataengine/internal/canonicalization"
	"github.com/correlator-io/dataengine/internal/metadata"
)

// UpsertDataFile upserts a file with its columns, connection and endpoint. The folders
// of its path are created on demand and shared with every file below them.
func (s *Service) UpsertDataFile(
	ctx context.Context,
	userID, externalSourceName string,
	file *metadata.DataFile,
) (UpsertResult, error) {
	const operation = "upsert_data_file"

	if err := s.validator.ValidateDataFile(file); err != nil {
		return UpsertResult{}, s.fail(ctx, operation, err)
	}

	var result UpsertResult

	err := s.write(ctx, operation, userID, externalSourceName, func(ctx context.Context, u *unit) error {
		var err error

		result, err = u.upsert(ctx, entitySpec{
			typeName:      metadata.TypeDataFile,
			qualifiedName: file.QualifiedName,
			properties:    file.EntityProperties(),
		})
		if err != nil {
			return err
		}

		if err := u.placeInFolders(ctx, result.GUID, file); err != nil {
			return err
		}

		if err := u.connect(ctx, result.GUID, file.QualifiedName, file.Protocol, file.NetworkAddress); err != nil {
			return err
		}

		if len(file.Columns) == 0 {
			return nil
		}

		schemaTypeGUID, err := u.derivedSchemaType(ctx, result.GUID, file.QualifiedName)
		if err != nil {
			return err
		}

		return u.syncAttributes(ctx, metadata.RelAttributeForSchema, schemaTypeGUID, tabularColumns(file.Columns))
	})
	if err != nil {
		return UpsertResult{}, err
	}

	return result, nil
}

// UpsertFolder upserts a standalone folder.
func (s *Service) UpsertFolder(
	ctx context.Context,
	userID, externalSourceName string,
	folder *metadata.FileFolder,
) (UpsertResult, error) {
	const operation = "upsert_folder"

	if err := s.validator.ValidateFolder(folder); err != nil {
		return UpsertResult{}, s.fail(ctx, operation, err)
	}

	var result UpsertResult

	err := s.write(ctx, operation, userID, externalSourceName, func(ctx context.Context, u *unit) error {
		var err error

		result, err = u.upsert(ctx, entitySpec{
			typeName:      metadata.TypeFileFolder,
			qualifiedName: folder.QualifiedName,
			properties:    folder.EntityProperties(),
		})

		return err
	})
	if err != nil {
		return UpsertResult{}, err
	}

	return result, nil
}

// DeleteDataFile deletes a file with its columns and connection. Folders stay.
func (s *Service) DeleteDataFile(
	ctx context.Context,
	userID, externalSourceName, qualifiedName string,
	semantic metadata.DeleteSemantic,
) error {
	return s.deleteEntity(ctx, "delete_data_file", userID, externalSourceName,
		metadata.TypeDataFile, qualifiedName, semantic)
}

// DeleteFolder deletes a folder. Files and sub-folders are detached, not deleted.
func (s *Service) DeleteFolder(
	ctx context.Context,
	userID, externalSourceName, qualifiedName string,
	semantic metadata.DeleteSemantic,
) error {
	return s.deleteEntity(ctx, "delete_folder", userID, externalSourceName,
		metadata.TypeFileFolder, qualifiedName, semantic)
}

// placeInFolders links the file to the innermost folder of its path and each folder
// to its parent. Folders are scoped by the file's endpoint.
func (u *unit) placeInFolders(ctx context.Context, fileGUID string, file *metadata.DataFile) error {
	paths := canonicalization.FolderPaths(file.PathName)
	if len(paths) == 0 {
		return nil
	}

	endpointQualifiedName := canonicalization.EndpointQualifiedName(file.Protocol, file.NetworkAddress)

	var parentGUID string

	for _, path := range paths {
		qualifiedName := canonicalization.FolderQualifiedName(endpointQualifiedName, path)

		folderGUID, err := u.ensure(ctx, entitySpec{
			typeName:      metadata.TypeFileFolder,
			qualifiedName: qualifiedName,
			properties: metadata.Properties{
				"qualifiedName": qualifiedName,
				"displayName":   canonicalization.BaseName(path),
				"pathName":      path,
			},
		})
		if err != nil {
			return err
		}

		if parentGUID != "" {
			if err := u.linkChild(ctx, metadata.RelFolderHierarchy, parentGUID, folderGUID, nil); err != nil {
				return err
			}
		}

		parentGUID = folderGUID
	}

	return u.linkChild(ctx, metadata.RelNestedFile, parentGUID, fileGUID, nil)
}
