// Package main provides the database migration CLI for the data engine service.
// Migrations are compiled into the binary.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/correlator-io/dataengine/internal/config"
)

// Set at build time with -ldflags.
var (
	Version   = "1.0.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

const name = "migrator"

// ErrUnknownCommand is returned for a command other than up, down, status, version or drop.
var ErrUnknownCommand = errors.New("unknown command")

func main() {
	flags := flag.NewFlagSet(name, flag.ExitOnError)

	var (
		showHelp    = flags.BoolP("help", "h", false, "show help information")
		showVersion = flags.Bool("version", false, "show version information")
		assumeYes   = flags.BoolP("yes", "y", false, "do not ask for confirmation before drop")
	)

	flags.Usage = func() { printUsage(os.Stderr) }
	_ = flags.Parse(os.Args[1:])

	if *showVersion {
		printVersionInfo(os.Stdout)
		os.Exit(0)
	}

	if *showHelp || flags.NArg() == 0 {
		printUsage(os.Stdout)
		os.Exit(0)
	}

	_ = config.LoadDotEnv()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("DATAENGINE_LOG_LEVEL", slog.LevelInfo),
	}))

	cfg, err := LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	runner, err := NewMigrationRunner(cfg, NewMigrationSet(nil), logger)
	if err != nil {
		logger.Error("Failed to create migration runner", slog.String("error", err.Error()))
		os.Exit(1)
	}

	command := flags.Arg(0)
	confirm := confirmFrom(os.Stdin, os.Stdout, *assumeYes)

	err = executeCommand(command, runner, os.Stdout, confirm)

	if closeErr := runner.Close(); closeErr != nil {
		logger.Warn("Failed to close migration runner", slog.String("error", closeErr.Error()))
	}

	if err != nil {
		logger.Error("Migration failed", slog.String("command", command), slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// executeCommand runs command against runner, writing reports to out. confirm gates drop.
func executeCommand(command string, runner MigrationRunner, out io.Writer, confirm func(string) bool) error {
	switch command {
	case "up":
		return runner.Up()
	case "down":
		return runner.Down()
	case "status":
		status, err := runner.Status()
		if err != nil {
			return err
		}

		_, err = io.WriteString(out, status.Summary())

		return err
	case "version":
		status, err := runner.Status()
		if err != nil {
			return err
		}

		dirty := ""
		if status.Dirty {
			dirty = " (dirty)"
		}

		_, err = fmt.Fprintf(out, "%d%s\n", status.Version, dirty)

		return err
	case "drop":
		if !confirm("WARNING: This will drop all tables. Are you sure? (y/N): ") {
			_, err := fmt.Fprintln(out, "Operation cancelled.")

			return err
		}

		return runner.Drop()
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
}

func confirmFrom(in io.Reader, out io.Writer, assumeYes bool) func(string) bool {
	return func(prompt string) bool {
		if assumeYes {
			return true
		}

		_, _ = fmt.Fprint(out, prompt)

		answer, _ := bufio.NewReader(in).ReadString('\n')

		return strings.EqualFold(strings.TrimSpace(answer), "y")
	}
}

func printVersionInfo(out io.Writer) {
	_, _ = fmt.Fprintf(out, "%s v%s\nGit Commit: %s\nBuild Time: %s\n", name, Version, GitCommit, BuildTime)
}

func printUsage(out io.Writer) {
	_, _ = fmt.Fprintf(out, `%s v%s - database migration tool for the data engine service

USAGE:
    %s [OPTIONS] COMMAND

COMMANDS:
    up       Apply all pending migrations
    down     Roll back the last migration
    status   Show schema version and pending migrations
    version  Print the current schema version
    drop     Drop all tables (asks for confirmation)

OPTIONS:
    -h, --help     Show this help message
        --version  Show version information
    -y, --yes      Skip the drop confirmation

ENVIRONMENT VARIABLES:
    DATABASE_URL     PostgreSQL connection string (required)
    MIGRATION_TABLE  Migration tracking table (default: schema_migrations)
`, name, Version, name)
}
