// Copyright 2019 eBay Inc.
// Primary authors: Simon Fell, Diego Ongaro,
//                  Raymond Kroeker, and Sathish Kandasamy.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package stats

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
	"github.com/ebay/querygap/config"
	log "github.com/sirupsen/logrus"

	// Registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"
)

// LoadFile reads a Snapshot from a JSON or YAML file holding a Data value.
func LoadFile(filename string) (*Snapshot, error) {
	var data Data
	if err := config.DecodeFile(filename, &data); err != nil {
		return nil, err
	}
	s, err := NewSnapshot(data)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid statistics in %v", filename)
	}
	return s, nil
}

// SQLiteSchema creates the tables that LoadSQLite reads. A catalog exporter
// can use it to prepare a database.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS table_stats (
	table_name TEXT PRIMARY KEY,
	row_count  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS column_stats (
	table_name  TEXT NOT NULL,
	column_name TEXT NOT NULL,
	ndv         INTEGER,
	selectivity REAL,
	is_unique   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (table_name, column_name)
);
CREATE TABLE IF NOT EXISTS foreign_keys (
	name        TEXT NOT NULL,
	position    INTEGER NOT NULL,
	table_name  TEXT NOT NULL,
	column_name TEXT NOT NULL,
	ref_table   TEXT NOT NULL,
	ref_column  TEXT NOT NULL,
	PRIMARY KEY (name, position)
);
`

// LoadSQLite reads a Snapshot from a SQLite catalog database laid out as in
// SQLiteSchema. A column with is_unique set is recorded as a single-column
// unique key. Foreign key columns are grouped by name in position order.
func LoadSQLite(ctx context.Context, path string) (*Snapshot, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening statistics database %v", path)
	}
	defer db.Close()
	data, err := readSQLite(ctx, db)
	if err != nil {
		return nil, errors.Wrapf(err, "reading statistics database %v", path)
	}
	s, err := NewSnapshot(data)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid statistics in %v", path)
	}
	log.WithFields(log.Fields{
		"path":        path,
		"tables":      len(data.Tables),
		"foreignKeys": len(data.ForeignKeys),
	}).Info("Loaded statistics")
	return s, nil
}

func readSQLite(ctx context.Context, db *sql.DB) (Data, error) {
	var data Data
	byName := make(map[string]int)

	rows, err := db.QueryContext(ctx,
		"SELECT table_name, row_count FROM table_stats ORDER BY table_name")
	if err != nil {
		return data, err
	}
	for rows.Next() {
		var t Table
		if err := rows.Scan(&t.Name, &t.RowCount); err != nil {
			rows.Close()
			return data, err
		}
		byName[t.Name] = len(data.Tables)
		data.Tables = append(data.Tables, t)
	}
	if err := closeRows(rows); err != nil {
		return data, err
	}

	rows, err = db.QueryContext(ctx,
		"SELECT table_name, column_name, ndv, selectivity, is_unique FROM column_stats "+
			"ORDER BY table_name, column_name")
	if err != nil {
		return data, err
	}
	for rows.Next() {
		var table string
		var col Column
		var ndv sql.NullInt64
		var sel sql.NullFloat64
		var unique bool
		if err := rows.Scan(&table, &col.Name, &ndv, &sel, &unique); err != nil {
			rows.Close()
			return data, err
		}
		if ndv.Valid {
			col.NDV = &ndv.Int64
		}
		if sel.Valid {
			col.Selectivity = &sel.Float64
		}
		idx, found := byName[table]
		if !found {
			rows.Close()
			return data, errors.Newf("column_stats references table %q without table_stats", table)
		}
		data.Tables[idx].Columns = append(data.Tables[idx].Columns, col)
		if unique {
			data.Tables[idx].UniqueKeys = append(data.Tables[idx].UniqueKeys, []string{col.Name})
		}
	}
	if err := closeRows(rows); err != nil {
		return data, err
	}

	rows, err = db.QueryContext(ctx,
		"SELECT name, table_name, column_name, ref_table, ref_column FROM foreign_keys "+
			"ORDER BY name, position")
	if err != nil {
		return data, err
	}
	fkIdx := make(map[string]int)
	for rows.Next() {
		var name, table, column, refTable, refColumn string
		if err := rows.Scan(&name, &table, &column, &refTable, &refColumn); err != nil {
			rows.Close()
			return data, err
		}
		idx, found := fkIdx[name]
		if !found {
			idx = len(data.ForeignKeys)
			fkIdx[name] = idx
			data.ForeignKeys = append(data.ForeignKeys, ForeignKey{Table: table, RefTable: refTable})
		}
		fk := &data.ForeignKeys[idx]
		fk.Columns = append(fk.Columns, column)
		fk.RefColumns = append(fk.RefColumns, refColumn)
	}
	return data, closeRows(rows)
}

func closeRows(rows *sql.Rows) error {
	err := rows.Err()
	if cerr := rows.Close(); err == nil {
		err = cerr
	}
	return err
}
