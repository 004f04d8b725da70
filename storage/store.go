// Package storage persists agent state in a SQLite database: each agent's
// message history and its scheduled tasks.
package storage

import (
	"database/sql"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store is the agent database at <data_dir>/agents.db.
type Store struct {
	db *sql.DB
}

func Open(dataDir string) (*Store, error) {
	return openPath(filepath.Join(dataDir, "agents.db"))
}

// OpenMemory opens a private in-memory database.
func OpenMemory() (*Store, error) {
	return openPath(":memory:")
}

func openPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serializes writers; one connection also keeps :memory: shared
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		agent TEXT NOT NULL,
		position INTEGER NOT NULL,
		id TEXT NOT NULL,
		role TEXT NOT NULL,
		body TEXT NOT NULL,
		PRIMARY KEY (agent, position)
	);
	CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		agent TEXT NOT NULL,
		description TEXT NOT NULL,
		kind TEXT NOT NULL,
		cron TEXT,
		next_run INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_schedules_next_run ON schedules(next_run);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	if err := s.migrateSchema(); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}
	return nil
}

// migrateSchema adds columns introduced after the first release.
func (s *Store) migrateSchema() error {
	migrations := []struct {
		table, column, ddl string
	}{
		{"messages", "created_at", `ALTER TABLE messages ADD COLUMN created_at INTEGER NOT NULL DEFAULT 0`},
		{"schedules", "created_at", `ALTER TABLE schedules ADD COLUMN created_at INTEGER NOT NULL DEFAULT 0`},
	}

	for _, m := range migrations {
		exists, err := s.columnExists(m.table, m.column)
		if err != nil {
			return fmt.Errorf("failed to check for %s.%s column: %w", m.table, m.column, err)
		}
		if exists {
			continue
		}
		if _, err := s.db.Exec(m.ddl); err != nil {
			return fmt.Errorf("failed to add %s.%s column: %w", m.table, m.column, err)
		}
	}
	return nil
}

// columnExists checks if a column exists in a table using PRAGMA table_info
func (s *Store) columnExists(tableName, columnName string) (bool, error) {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid          int
			name         string
			dataType     string
			notNull      int
			defaultValue any
			pk           int
		)
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return false, err
		}
		if name == columnName {
			return true, nil
		}
	}
	return false, rows.Err()
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
