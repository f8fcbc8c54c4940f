package store

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

const defaultMigrationsDir = "db/migrations"

// Migrator applies schema migrations with golang-migrate. The migrations
// directory defaults to db/migrations under the working directory.
type Migrator struct {
	dsn string
	dir string
}

type MigratorOption func(*Migrator)

// WithMigrationsDir overrides the migrations directory, for deployments
// that do not run from the repo root.
func WithMigrationsDir(dir string) MigratorOption {
	return func(m *Migrator) { m.dir = dir }
}

func NewMigrator(dsn string, opts ...MigratorOption) (*Migrator, error) {
	if dsn == "" {
		return nil, fmt.Errorf("missing DSN")
	}
	m := &Migrator{dsn: dsn, dir: defaultMigrationsDir}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// Up applies all pending migrations. ErrNoChange when already current.
func (m *Migrator) Up(ctx context.Context) error {
	return m.run(func(mig *migrate.Migrate) error { return mig.Up() })
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) error {
	return m.run(func(mig *migrate.Migrate) error { return mig.Steps(-1) })
}

func (m *Migrator) run(step func(*migrate.Migrate) error) error {
	src, err := m.sourceURL()
	if err != nil {
		return err
	}
	mig, err := migrate.New(src, m.dsn)
	if err != nil {
		return err
	}
	defer mig.Close()
	if err := step(mig); err != nil {
		if err == migrate.ErrNoChange {
			return ErrNoChange
		}
		return err
	}
	return nil
}

func (m *Migrator) sourceURL() (string, error) {
	dir := m.dir
	if !filepath.IsAbs(dir) {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(wd, dir)
	}
	u := url.URL{Scheme: "file", Path: dir}
	return u.String(), nil
}
