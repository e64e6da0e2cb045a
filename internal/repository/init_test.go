// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

func init() {
	dir, err := os.MkdirTemp("", "mailpipe-repo-test")
	if err != nil {
		panic(err)
	}
	dbPath := filepath.Join(dir, "test.db")
	if err := Connect("sqlite3", dbPath); err != nil {
		panic(err)
	}
	if err := Migrate("sqlite3", GetConnection().DB.DB); err != nil {
		panic(err)
	}
}
