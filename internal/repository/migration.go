// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/inboxforge/mailpipe/pkg/log"
)

//go:embed migrations/*
var migrationFiles embed.FS

// Migrate applies all pending migrations for the given driver/db pair.
// Called once at process startup, before any repository is used.
func Migrate(driver string, db *sql.DB) error {
	var m *migrate.Migrate

	switch driver {
	case "sqlite3":
		instance, err := sqlite3.WithInstance(db, &sqlite3.Config{})
		if err != nil {
			return fmt.Errorf("repository: sqlite3 migrate instance: %w", err)
		}
		src, err := iofs.New(migrationFiles, "migrations/sqlite3")
		if err != nil {
			return fmt.Errorf("repository: sqlite3 migration source: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", src, "sqlite3", instance)
		if err != nil {
			return fmt.Errorf("repository: sqlite3 migrate: %w", err)
		}
	case "postgres":
		instance, err := postgres.WithInstance(db, &postgres.Config{})
		if err != nil {
			return fmt.Errorf("repository: postgres migrate instance: %w", err)
		}
		src, err := iofs.New(migrationFiles, "migrations/postgres")
		if err != nil {
			return fmt.Errorf("repository: postgres migration source: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", src, "postgres", instance)
		if err != nil {
			return fmt.Errorf("repository: postgres migrate: %w", err)
		}
	default:
		return fmt.Errorf("repository: unsupported db driver %q", driver)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("repository: apply migrations: %w", err)
	}

	v, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("repository: read migration version: %w", err)
	}
	log.Infof("repository: schema at version %d (dirty=%v)", v, dirty)
	return nil
}
