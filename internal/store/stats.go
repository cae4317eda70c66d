package store

import (
	"database/sql"
	"time"

	"novel-translator/internal/types"
)

// Stats summarizes pipeline progress.
type Stats struct {
	ChaptersByStatus map[types.ChapterStatus]int
	TotalChapters    int
	GlossaryTerms    int
	TotalRequests    int
	TotalFailures    int
}

// Stats returns chapter counts per status plus glossary and API usage totals.
func (s *Store) Stats() (*Stats, error) {
	st := &Stats{ChaptersByStatus: make(map[types.ChapterStatus]int)}

	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM chapters GROUP BY status`)
	if err != nil {
		return nil, types.NewAppError(types.ErrStorage, "failed to query chapter stats", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, types.NewAppError(types.ErrStorage, "failed to scan chapter stats", err)
		}
		st.ChaptersByStatus[types.ChapterStatus(status)] = count
		st.TotalChapters += count
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrStorage, "failed to read chapter stats", err)
	}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM glossary WHERE active = 1`).Scan(&st.GlossaryTerms); err != nil {
		return nil, types.NewAppError(types.ErrStorage, "failed to query glossary stats", err)
	}

	var requests, failures sql.NullInt64
	if err := s.db.QueryRow(`SELECT SUM(requests), SUM(failures) FROM api_stats`).Scan(&requests, &failures); err != nil {
		return nil, types.NewAppError(types.ErrStorage, "failed to query api stats", err)
	}
	st.TotalRequests = int(requests.Int64)
	st.TotalFailures = int(failures.Int64)
	return st, nil
}

// RecordKeyUsage updates per-key request accounting. Failures keep the last
// error message for diagnostics. Errors here are logged by the caller at
// most; accounting must never fail a translation.
func (s *Store) RecordKeyUsage(keyIndex int, success bool, errMsg string) {
	successInc, failureInc := 1, 0
	if !success {
		successInc, failureInc = 0, 1
	}
	s.db.Exec(`
		INSERT INTO api_stats (key_index, requests, successes, failures, last_error, last_used)
		VALUES (?, 1, ?, ?, ?, ?)
		ON CONFLICT(key_index) DO UPDATE SET
			requests = requests + 1,
			successes = successes + excluded.successes,
			failures = failures + excluded.failures,
			last_error = CASE WHEN excluded.failures > 0 THEN excluded.last_error ELSE last_error END,
			last_used = excluded.last_used`,
		keyIndex, successInc, failureInc, errMsg, time.Now().UTC())
}

// LogPrompt appends one prompt/response pair outside a commit transaction,
// used for calls whose chapter ends in error.
func (s *Store) LogPrompt(p PromptLog) error {
	tx, err := s.db.Begin()
	if err != nil {
		return types.NewAppError(types.ErrStorage, "failed to begin transaction", err)
	}
	defer tx.Rollback()
	if err := logPromptTx(tx, p); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return types.NewAppError(types.ErrStorage, "failed to commit transaction", err)
	}
	return nil
}

// Prompts returns the logged prompt/response pairs for a chapter in
// insertion order.
func (s *Store) Prompts(chapter int) ([]PromptLog, error) {
	rows, err := s.db.Query(
		`SELECT chapter, kind, prompt, response, success FROM prompts WHERE chapter = ? ORDER BY id ASC`,
		chapter)
	if err != nil {
		return nil, types.NewAppError(types.ErrStorage, "failed to query prompts", err)
	}
	defer rows.Close()

	var out []PromptLog
	for rows.Next() {
		var (
			p       PromptLog
			success int
		)
		if err := rows.Scan(&p.Chapter, &p.Kind, &p.Prompt, &p.Response, &success); err != nil {
			return nil, types.NewAppError(types.ErrStorage, "failed to scan prompt", err)
		}
		p.Success = success == 1
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrStorage, "failed to read prompt rows", err)
	}
	return out, nil
}

func logPromptTx(tx *sql.Tx, p PromptLog) error {
	success := 0
	if p.Success {
		success = 1
	}
	_, err := tx.Exec(`
		INSERT INTO prompts (chapter, kind, prompt, response, success)
		VALUES (?, ?, ?, ?, ?)`,
		p.Chapter, p.Kind, p.Prompt, p.Response, success)
	if err != nil {
		return types.NewAppError(types.ErrStorage, "failed to log prompt", err)
	}
	return nil
}
