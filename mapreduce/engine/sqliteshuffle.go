package engine

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"mrjobs/mapreduce/types"
)

// sqliteOptions tunes sqlite for throwaway scratch databases.
const sqliteOptions = "?_busy_timeout=10000" +
	"&_case_sensitive_like=OFF" +
	"&_foreign_keys=ON" +
	"&_journal_mode=OFF" +
	"&_locking_mode=NORMAL" +
	"&_synchronous=OFF"

// sqliteShuffle writes each (map, partition) stream into its own database,
// then merges a partition's databases into one and lets sqlite do the sort.
type sqliteShuffle struct {
	dir string

	mu  sync.Mutex
	dbs map[int][]string
}

func newSQLiteShuffle(dir string) *sqliteShuffle {
	return &sqliteShuffle{
		dir: dir,
		dbs: make(map[int][]string),
	}
}

func openDatabase(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+sqliteOptions)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	return db, nil
}

// createDatabase replaces any database at path with an empty pairs table.
func createDatabase(path string) (*sql.DB, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove existing database: %w", err)
	}
	db, err := openDatabase(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("CREATE TABLE pairs (key text, value text)"); err != nil {
		db.Close()
		return nil, fmt.Errorf("create pairs table: %w", err)
	}
	return db, nil
}

func (s *sqliteShuffle) Writer(mapID, partition int) (recordWriter, error) {
	path := filepath.Join(s.dir, fmt.Sprintf("map-%d-part-%d.db", mapID, partition))
	db, err := createDatabase(path)
	if err != nil {
		return nil, err
	}
	tx, err := db.Begin()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	stmt, err := tx.Prepare("INSERT INTO pairs (key, value) VALUES (?, ?)")
	if err != nil {
		tx.Rollback()
		db.Close()
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	s.mu.Lock()
	s.dbs[partition] = append(s.dbs[partition], path)
	s.mu.Unlock()
	return &sqliteWriter{db: db, tx: tx, stmt: stmt}, nil
}

func (s *sqliteShuffle) Groups(ctx context.Context, partition int, fn groupFunc) error {
	s.mu.Lock()
	paths := append([]string(nil), s.dbs[partition]...)
	s.mu.Unlock()
	sort.Strings(paths)

	db, err := createDatabase(filepath.Join(s.dir, fmt.Sprintf("reduce-%d.db", partition)))
	if err != nil {
		return err
	}
	defer db.Close()
	// ATTACH is per connection, so every statement must share one.
	db.SetMaxOpenConns(1)
	for _, path := range paths {
		if err := gatherInto(ctx, db, path); err != nil {
			return err
		}
	}

	rows, err := db.QueryContext(ctx, "SELECT key, value FROM pairs ORDER BY key, value")
	if err != nil {
		return fmt.Errorf("query pairs: %w", err)
	}
	defer rows.Close()

	var (
		current string
		values  []string
		started bool
	)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("scan pair: %w", err)
		}
		if started && key != current {
			if err := fn(current, values); err != nil {
				return err
			}
			values = nil
		}
		current, started = key, true
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate pairs: %w", err)
	}
	if started {
		return fn(current, values)
	}
	return nil
}

// gatherInto copies every pair of the database at path into db.
func gatherInto(ctx context.Context, db *sql.DB, path string) error {
	if _, err := db.ExecContext(ctx, "ATTACH ? AS merge", path); err != nil {
		return fmt.Errorf("attach %s: %w", filepath.Base(path), err)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO pairs SELECT * FROM merge.pairs"); err != nil {
		db.Exec("DETACH merge")
		return fmt.Errorf("merge %s: %w", filepath.Base(path), err)
	}
	if _, err := db.ExecContext(ctx, "DETACH merge"); err != nil {
		return fmt.Errorf("detach %s: %w", filepath.Base(path), err)
	}
	return nil
}

type sqliteWriter struct {
	db   *sql.DB
	tx   *sql.Tx
	stmt *sql.Stmt
}

func (w *sqliteWriter) Write(kv types.KeyValue) error {
	if _, err := w.stmt.Exec(kv.Key, kv.Value); err != nil {
		return fmt.Errorf("insert pair: %w", err)
	}
	return nil
}

func (w *sqliteWriter) Close() error {
	w.stmt.Close()
	if err := w.tx.Commit(); err != nil {
		w.db.Close()
		return fmt.Errorf("commit pairs: %w", err)
	}
	return w.db.Close()
}
