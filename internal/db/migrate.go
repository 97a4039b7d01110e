package db

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/memohai/inboxd/internal/config"
)

// Migrate commands accepted by RunMigrate.
const (
	MigrateUp      = "up"
	MigrateDown    = "down"
	MigrateVersion = "version"
	MigrateForce   = "force"
)

// SchemaState is the schema version recorded in schema_migrations.
type SchemaState struct {
	Version uint
	Dirty   bool
}

// Migrator applies the embedded schema to one database.
type Migrator struct {
	m   *migrate.Migrate
	log *slog.Logger
}

// NewMigrator opens a migrate instance over migrationsFS (.sql files at its root).
func NewMigrator(log *slog.Logger, cfg config.PostgresConfig, migrationsFS fs.FS) (*Migrator, error) {
	if log == nil {
		log = slog.Default()
	}
	src, err := iofs.New(migrationsFS, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("migrate init: %w", err)
	}
	m.Log = migrateLog{log: log}
	return &Migrator{m: m, log: log}, nil
}

// Close releases the source and database handles.
func (g *Migrator) Close() error {
	srcErr, dbErr := g.m.Close()
	return errors.Join(srcErr, dbErr)
}

// Up applies pending migrations. An up-to-date schema is not an error.
func (g *Migrator) Up() (SchemaState, error) {
	if err := g.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return SchemaState{}, fmt.Errorf("migrate up: %w", err)
	}
	return g.State()
}

// Down rolls back every migration.
func (g *Migrator) Down() error {
	if err := g.m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// State reports the applied version; an empty database yields the zero state.
func (g *Migrator) State() (SchemaState, error) {
	ver, dirty, err := g.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return SchemaState{}, nil
	}
	if err != nil {
		return SchemaState{}, fmt.Errorf("migrate version: %w", err)
	}
	return SchemaState{Version: ver, Dirty: dirty}, nil
}

// Force marks version as applied and clears the dirty flag.
func (g *Migrator) Force(version int) error {
	if err := g.m.Force(version); err != nil {
		return fmt.Errorf("migrate force: %w", err)
	}
	return nil
}

// RunMigrate executes one CLI migrate command: up, down, version or force N.
func RunMigrate(log *slog.Logger, cfg config.PostgresConfig, migrationsFS fs.FS, command string, args []string) error {
	if log == nil {
		log = slog.Default()
	}
	forceVersion, err := checkMigrateCommand(command, args)
	if err != nil {
		return err
	}
	g, err := NewMigrator(log, cfg, migrationsFS)
	if err != nil {
		return err
	}
	defer func() { _ = g.Close() }()

	switch command {
	case MigrateUp:
		st, err := g.Up()
		if err != nil {
			return err
		}
		log.Info("schema up to date", slog.Uint64("version", uint64(st.Version)), slog.Bool("dirty", st.Dirty))
	case MigrateDown:
		if err := g.Down(); err != nil {
			return err
		}
		log.Info("schema rolled back")
	case MigrateVersion:
		st, err := g.State()
		if err != nil {
			return err
		}
		log.Info("schema version", slog.Uint64("version", uint64(st.Version)), slog.Bool("dirty", st.Dirty))
	case MigrateForce:
		if err := g.Force(forceVersion); err != nil {
			return err
		}
		log.Info("schema version forced", slog.Int("version", forceVersion))
	}
	return nil
}

// checkMigrateCommand validates the command before any connection is made.
func checkMigrateCommand(command string, args []string) (int, error) {
	switch command {
	case MigrateUp, MigrateDown, MigrateVersion:
		return 0, nil
	case MigrateForce:
		if len(args) == 0 {
			return 0, errors.New("force requires a version number argument")
		}
		v, err := strconv.Atoi(strings.TrimSpace(args[0]))
		if err != nil {
			return 0, fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		return v, nil
	default:
		return 0, fmt.Errorf("unknown migrate command: %s (use: up, down, version, force)", command)
	}
}

type migrateLog struct {
	log *slog.Logger
}

func (l migrateLog) Printf(format string, v ...any) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrateLog) Verbose() bool { return false }
