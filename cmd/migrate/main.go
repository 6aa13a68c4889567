package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-prep/internal/config"
	"github.com/stemsi/exstem-prep/internal/logger"
)

const schemaName = "exstem-prep"

func main() {
	var migrationDir string
	flag.StringVar(&migrationDir, "path", "", "Path to migration files (default: ./migrations, searched upwards)")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		return
	}

	dir, err := resolveMigrationDir(migrationDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Migration files not found")
	}

	m, err := migrate.New("file://"+filepath.ToSlash(dir), cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Migration failed to initialize")
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			log.Warn().AnErr("source", srcErr).AnErr("database", dbErr).Msg("Migration close failed")
		}
	}()

	log.Info().Str("schema", schemaName).Str("dir", dir).Str("command", args[0]).Msg("Running migration")
	if err := run(m, args, log); err != nil {
		log.Error().Err(err).Str("command", args[0]).Msg("Migration failed")
		printUsage()
		os.Exit(1)
	}
}

// resolveMigrationDir returns explicit when set, otherwise the nearest
// "migrations" directory from the working directory upwards, so the command
// works from cmd/migrate as well as from the repository root.
func resolveMigrationDir(explicit string) (string, error) {
	if explicit != "" {
		if info, err := os.Stat(explicit); err != nil || !info.IsDir() {
			return "", fmt.Errorf("%s is not a directory", explicit)
		}
		return explicit, nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(dir, "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("no migrations directory above the working directory")
		}
		dir = parent
	}
}

// migrator is the part of *migrate.Migrate the commands use.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(v int) error
}

func run(m migrator, args []string, log zerolog.Logger) error {
	switch args[0] {
	case "up":
		if _, dirty, err := m.Version(); err == nil && dirty {
			return errors.New("database is dirty, fix it with force <version> first")
		}
		if err := ignoreNoChange(m.Up()); err != nil {
			return err
		}
	case "down":
		if err := ignoreNoChange(m.Down()); err != nil {
			return err
		}
	case "steps":
		if len(args) < 2 {
			return errors.New("steps requires a signed count")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil || n == 0 {
			return fmt.Errorf("invalid step count %q", args[1])
		}
		if err := ignoreNoChange(m.Steps(n)); err != nil {
			return err
		}
	case "version":
	case "force":
		if len(args) < 2 {
			return errors.New("force requires a version argument")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[1])
		}
		if err := m.Force(v); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		log.Info().Msg("Schema has no migrations applied")
	case err != nil:
		return err
	default:
		log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Schema version")
	}
	return nil
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

func printUsage() {
	fmt.Println("Usage: migrate [flags] <command>")
	fmt.Println("Commands: up, down, steps <n>, version, force <version>")
	fmt.Println("Flags:")
	flag.PrintDefaults()
}
