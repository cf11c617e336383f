package main

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
)

const (
	directionUp   = "up"
	directionDown = "down"
)

var (
	// ErrNoMigrations is returned when the migration set holds no SQL files.
	ErrNoMigrations = errors.New("no migration files found")

	// ErrUnpairedMigration is returned when an up file has no down file or the reverse.
	ErrUnpairedMigration = errors.New("unpaired migration")

	// ErrSequenceGap is returned when sequence numbers do not run 001, 002, ... without gaps.
	ErrSequenceGap = errors.New("gap in migration sequence")
)

//go:embed *.sql
var embeddedMigrations embed.FS

// NNN_name.up.sql or NNN_name.down.sql
var migrationFilenameRegex = regexp.MustCompile(`^(\d{3})_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

type (
	// MigrationSet is the validated view of a directory of migration files.
	MigrationSet struct {
		fs fs.FS
	}

	// MigrationFile is a parsed migration filename.
	MigrationFile struct {
		Sequence  int
		Name      string
		Direction string
		Filename  string
	}
)

// NewMigrationSet wraps filesystem. A nil filesystem selects the migrations compiled
// into the binary.
func NewMigrationSet(filesystem fs.FS) *MigrationSet {
	if filesystem == nil {
		filesystem = embeddedMigrations
	}

	return &MigrationSet{fs: filesystem}
}

// FS returns the underlying filesystem for the iofs source driver.
func (s *MigrationSet) FS() fs.FS {
	return s.fs
}

// Files returns the migration files in apply order. Files not matching the
// NNN_name.(up|down).sql convention are ignored.
func (s *MigrationSet) Files() ([]MigrationFile, error) {
	entries, err := fs.ReadDir(s.fs, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []MigrationFile

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		file, ok := parseMigrationFilename(entry.Name())
		if ok {
			files = append(files, file)
		}
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].Sequence != files[j].Sequence {
			return files[i].Sequence < files[j].Sequence
		}

		return files[i].Filename < files[j].Filename
	})

	return files, nil
}

// Validate checks that the set is non-empty, every migration is paired and the
// sequence starts at 001 without gaps.
func (s *MigrationSet) Validate() error {
	files, err := s.Files()
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return ErrNoMigrations
	}

	pairs := make(map[string]map[string]bool)
	sequences := make(map[int]bool)

	for _, file := range files {
		if _, err := fs.ReadFile(s.fs, file.Filename); err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file.Filename, err)
		}

		key := fmt.Sprintf("%03d_%s", file.Sequence, file.Name)
		if pairs[key] == nil {
			pairs[key] = make(map[string]bool, 2)
		}

		pairs[key][file.Direction] = true
		sequences[file.Sequence] = true
	}

	for key, directions := range pairs {
		if !directions[directionUp] {
			return fmt.Errorf("%w: missing up migration for %s", ErrUnpairedMigration, key)
		}

		if !directions[directionDown] {
			return fmt.Errorf("%w: missing down migration for %s", ErrUnpairedMigration, key)
		}
	}

	for seq := 1; seq <= len(sequences); seq++ {
		if !sequences[seq] {
			return fmt.Errorf("%w: expected %03d", ErrSequenceGap, seq)
		}
	}

	return nil
}

// Latest returns the highest sequence number in the set, or 0 when it is empty.
func (s *MigrationSet) Latest() int {
	files, err := s.Files()
	if err != nil || len(files) == 0 {
		return 0
	}

	return files[len(files)-1].Sequence
}

// Pending returns the up migrations newer than version.
func (s *MigrationSet) Pending(version int) ([]MigrationFile, error) {
	files, err := s.Files()
	if err != nil {
		return nil, err
	}

	var pending []MigrationFile

	for _, file := range files {
		if file.Direction == directionUp && file.Sequence > version {
			pending = append(pending, file)
		}
	}

	return pending, nil
}

func parseMigrationFilename(filename string) (MigrationFile, bool) {
	matches := migrationFilenameRegex.FindStringSubmatch(filename)
	if len(matches) != 4 {
		return MigrationFile{}, false
	}

	sequence, err := strconv.Atoi(matches[1])
	if err != nil {
		return MigrationFile{}, false
	}

	return MigrationFile{
		Sequence:  sequence,
		Name:      matches[2],
		Direction: matches[3],
		Filename:  filename,
	}, true
}
