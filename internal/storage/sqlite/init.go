package sqlite

import (
	"database/sql"
	"fmt"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens the SQLite database at path and creates the downloads table if it doesn't exist.
// Use ":memory:" for a throwaway database.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// database/sql would otherwise open several connections, and each ":memory:" connection is a separate database.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS downloads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id TEXT NOT NULL,
		video_id TEXT NOT NULL,
		title TEXT,
		playlist TEXT,
		file_path TEXT,
		status TEXT NOT NULL,
		downloaded_at TEXT NOT NULL
	)`)
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create downloads table: %w", err)
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_downloads_status ON downloads(status)`); err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create downloads index: %w", err)
	}

	return db, nil
}
