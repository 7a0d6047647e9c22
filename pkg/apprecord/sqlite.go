// Copyright 2025 AUTHORS
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package apprecord

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// sqliteMirror is an optional cache of last_build_time. The filesystem
// state file is always the source of truth; the mirror only serves
// faster lookups and is rebuildable from scratch by replaying every
// AppRecord's state file.
type sqliteMirror struct {
	db *sql.DB
}

func openSQLiteMirror(path string) (*sqliteMirror, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	const schema = `
CREATE TABLE IF NOT EXISTS last_build_time (
	app_name TEXT PRIMARY KEY,
	last_build_time TIMESTAMP NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apprecord: create mirror schema: %w", err)
	}
	return &sqliteMirror{db: db}, nil
}

func (m *sqliteMirror) stampBuildTime(name string, t time.Time) error {
	_, err := m.db.Exec(
		`INSERT INTO last_build_time (app_name, last_build_time) VALUES (?, ?)
		 ON CONFLICT(app_name) DO UPDATE SET last_build_time = excluded.last_build_time`,
		name, t,
	)
	return err
}

// lastBuildTime reads the mirrored timestamp, used only by tests and
// diagnostics; the registry itself always reads the state file.
func (m *sqliteMirror) lastBuildTime(name string) (time.Time, bool, error) {
	var t time.Time
	err := m.db.QueryRow(`SELECT last_build_time FROM last_build_time WHERE app_name = ?`, name).Scan(&t)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

func (m *sqliteMirror) close() error { return m.db.Close() }
