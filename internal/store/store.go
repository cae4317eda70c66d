// Package store persists pipeline state in SQLite. It is the single source of
// truth for chapter status: every transition the orchestrator or editor makes
// goes through a store operation, and restarts resume purely from what is
// recorded here.
package store

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"novel-translator/internal/logger"
	"novel-translator/internal/types"
)

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS chapters (
	number              INTEGER PRIMARY KEY,
	url                 TEXT NOT NULL DEFAULT '',
	original_title      TEXT NOT NULL DEFAULT '',
	original_text       TEXT NOT NULL DEFAULT '',
	word_count          INTEGER NOT NULL DEFAULT 0,
	paragraph_count     INTEGER NOT NULL DEFAULT 0,
	translated_title    TEXT NOT NULL DEFAULT '',
	translated_text     TEXT NOT NULL DEFAULT '',
	summary             TEXT NOT NULL DEFAULT '',
	translation_seconds REAL NOT NULL DEFAULT 0,
	translated_at       TIMESTAMP,
	edited_text         TEXT NOT NULL DEFAULT '',
	editing_seconds     REAL NOT NULL DEFAULT 0,
	edited_at           TIMESTAMP,
	status              TEXT NOT NULL DEFAULT 'pending',
	error_message       TEXT NOT NULL DEFAULT '',
	updated_at          TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_chapters_status ON chapters(status);

CREATE TABLE IF NOT EXISTS glossary (
	source_term   TEXT PRIMARY KEY,
	target_term   TEXT NOT NULL,
	category      TEXT NOT NULL,
	first_chapter INTEGER NOT NULL DEFAULT 0,
	usage_count   INTEGER NOT NULL DEFAULT 0,
	active        INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS prompts (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	chapter     INTEGER NOT NULL,
	kind        TEXT NOT NULL,
	prompt      TEXT NOT NULL,
	response    TEXT NOT NULL DEFAULT '',
	success     INTEGER NOT NULL DEFAULT 1,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_prompts_chapter ON prompts(chapter);

CREATE TABLE IF NOT EXISTS api_stats (
	key_index  INTEGER PRIMARY KEY,
	requests   INTEGER NOT NULL DEFAULT 0,
	successes  INTEGER NOT NULL DEFAULT 0,
	failures   INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	last_used  TIMESTAMP
);
`

// Open opens (creating if needed) the SQLite database at path and ensures the
// schema exists. Use ":memory:" for an ephemeral database in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, types.NewAppError(types.ErrStorage, "failed to open database", err)
	}
	// SQLite serializes writers; a single connection avoids database-locked
	// errors from concurrent statements inside one process.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, types.NewAppError(types.ErrStorage, "failed to initialize schema", err)
	}

	logger.Info("database opened", logger.String("path", path))
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// PromptLog records one model call for later inspection.
type PromptLog struct {
	Chapter  int
	Kind     string // translate, summary, terms, edit_analysis, edit_style, edit_dialogue, edit_polish
	Prompt   string
	Response string
	Success  bool
}

// durationSeconds converts for the REAL seconds columns.
func durationSeconds(d time.Duration) float64 {
	return d.Seconds()
}

func secondsDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
