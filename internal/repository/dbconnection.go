// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"

	"github.com/inboxforge/mailpipe/pkg/log"
)

var (
	dbConnOnce     sync.Once
	dbConnInstance *DBConnection
)

// DBConnection wraps the shared sqlx handle plus a squirrel statement
// cache, mirroring the teacher's single-process-wide connection pattern.
type DBConnection struct {
	DB        *sqlx.DB
	StmtCache *sq.StmtCache
	Driver    string
}

// Connect opens the database exactly once per process. driver is
// "postgres" or "sqlite3"; dsn is the corresponding connection string.
func Connect(driver, dsn string) error {
	var outerErr error
	dbConnOnce.Do(func() {
		var dbHandle *sqlx.DB
		var err error

		switch driver {
		case "sqlite3":
			sql.Register("sqlite3WithHooks", sqlhooks.Wrap(&sqlite3.SQLiteDriver{}, &Hooks{}))
			dbHandle, err = sqlx.Open("sqlite3WithHooks", fmt.Sprintf("%s?_foreign_keys=on", dsn))
			if err != nil {
				outerErr = fmt.Errorf("repository: open sqlite3: %w", err)
				return
			}
			// sqlite does not multiplex writers; one connection avoids lock contention.
			dbHandle.SetMaxOpenConns(1)
		case "postgres":
			sql.Register("postgresWithHooks", sqlhooks.Wrap(&pq.Driver{}, &Hooks{}))
			dbHandle, err = sqlx.Open("postgresWithHooks", dsn)
			if err != nil {
				outerErr = fmt.Errorf("repository: open postgres: %w", err)
				return
			}
			dbHandle.SetConnMaxLifetime(time.Hour)
			dbHandle.SetMaxOpenConns(20)
			dbHandle.SetMaxIdleConns(10)
		default:
			outerErr = fmt.Errorf("repository: unsupported db driver %q", driver)
			return
		}

		if err := dbHandle.Ping(); err != nil {
			outerErr = fmt.Errorf("repository: ping %s: %w", driver, err)
			return
		}

		dbConnInstance = &DBConnection{
			DB:        dbHandle,
			StmtCache: sq.NewStmtCache(dbHandle.DB),
			Driver:    driver,
		}
	})
	return outerErr
}

// GetConnection returns the process-wide connection. Connect must have
// succeeded first.
func GetConnection() *DBConnection {
	if dbConnInstance == nil {
		log.Abortf("repository: database connection not initialized")
	}
	return dbConnInstance
}

// placeholderFormat returns the squirrel placeholder style for the
// active driver ($1, $2... for postgres; ? for sqlite3).
func placeholderFormat() sq.PlaceholderFormat {
	if GetConnection().Driver == "postgres" {
		return sq.Dollar
	}
	return sq.Question
}
