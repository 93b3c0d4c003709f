// Package dbmigrate runs the SQL files under migrations/ against Postgres.
// The server applies them at startup; cmd/migrate exposes the same runner
// for manual up, down, version and force operations.
package dbmigrate

import (
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

// ErrDirty means a previous migration failed halfway and needs Force.
var ErrDirty = errors.New("database is in a dirty state")

type Runner struct {
	m  *migrate.Migrate
	db *sql.DB
}

// Open connects to dsn and loads migrations from dir.
func Open(dir, dsn string) (*Runner, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating migrate driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating migrate instance: %w", err)
	}
	return &Runner{m: m, db: db}, nil
}

func (r *Runner) Close() error {
	return r.db.Close()
}

// Version returns 0 for a database that has never been migrated.
func (r *Runner) Version() (uint, bool, error) {
	v, dirty, err := r.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// Up applies steps migrations, or all pending ones when steps is 0.
func (r *Runner) Up(steps int) error {
	return r.apply(steps, r.m.Up)
}

// Down rolls back steps migrations, or all of them when steps is 0.
func (r *Runner) Down(steps int) error {
	return r.apply(-steps, r.m.Down)
}

func (r *Runner) Force(version int) error {
	return r.m.Force(version)
}

func (r *Runner) apply(steps int, all func() error) error {
	var err error
	if steps != 0 {
		err = r.m.Steps(steps)
	} else {
		err = all()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Apply brings the schema at dsn up to date. A dirty database is refused.
func Apply(dir, dsn string) error {
	r, err := Open(dir, dsn)
	if err != nil {
		return err
	}
	defer r.Close()

	from, dirty, err := r.Version()
	if err != nil {
		return fmt.Errorf("checking migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("%w (version %d), manual intervention required", ErrDirty, from)
	}
	if err := r.Up(0); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	to, _, _ := r.Version()
	if to == from {
		log.Printf("Database is up to date (version %d)", to)
	} else {
		log.Printf("Migrated from version %d to %d", from, to)
	}
	return nil
}
