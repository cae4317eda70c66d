package store

import (
	"database/sql"
	"fmt"
	"time"

	"novel-translator/internal/logger"
	"novel-translator/internal/types"
)

const chapterColumns = `number, url, original_title, original_text, word_count,
	paragraph_count, translated_title, translated_text, summary,
	translation_seconds, translated_at, edited_text, editing_seconds,
	edited_at, status`

// SaveParsedChapter stores the scraper's output for a chapter and moves it to
// parsed. Re-saving an existing chapter refreshes the source fields but never
// touches translated data or regresses a status past parsed.
func (s *Store) SaveParsedChapter(ch *types.Chapter) error {
	_, err := s.db.Exec(`
		INSERT INTO chapters (number, url, original_title, original_text, word_count, paragraph_count, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(number) DO UPDATE SET
			url = excluded.url,
			original_title = excluded.original_title,
			original_text = excluded.original_text,
			word_count = excluded.word_count,
			paragraph_count = excluded.paragraph_count,
			status = CASE WHEN chapters.status IN ('pending', 'parsed') THEN 'parsed' ELSE chapters.status END,
			updated_at = CURRENT_TIMESTAMP`,
		ch.Number, ch.URL, ch.OriginalTitle, ch.OriginalText,
		ch.WordCount, ch.ParagraphCount, string(types.StatusParsed))
	if err != nil {
		return types.NewAppError(types.ErrStorage, "failed to save parsed chapter", err)
	}
	return nil
}

// ChaptersByStatus returns chapters in the given status, ordered by ascending
// chapter number. limit <= 0 means no cap.
func (s *Store) ChaptersByStatus(status types.ChapterStatus, limit int) ([]*types.Chapter, error) {
	query := `SELECT ` + chapterColumns + ` FROM chapters WHERE status = ? ORDER BY number ASC`
	args := []any{string(status)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrStorage, "failed to query chapters", err)
	}
	defer rows.Close()

	var chapters []*types.Chapter
	for rows.Next() {
		ch, err := scanChapter(rows)
		if err != nil {
			return nil, err
		}
		chapters = append(chapters, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrStorage, "failed to read chapter rows", err)
	}
	return chapters, nil
}

// Chapter returns one chapter by number, or nil when it does not exist.
func (s *Store) Chapter(number int) (*types.Chapter, error) {
	row := s.db.QueryRow(`SELECT `+chapterColumns+` FROM chapters WHERE number = ?`, number)
	ch, err := scanChapter(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ch, err
}

// ClaimChapter atomically moves a chapter from parsed to translating. It
// reports false when the chapter is not claimable (already claimed, already
// translated, or unknown), which is how re-runs skip committed work.
func (s *Store) ClaimChapter(number int) (bool, error) {
	return s.claim(number, types.StatusParsed, types.StatusTranslating)
}

// ClaimForEditing atomically moves a chapter from translated to editing.
func (s *Store) ClaimForEditing(number int) (bool, error) {
	return s.claim(number, types.StatusTranslated, types.StatusEditing)
}

func (s *Store) claim(number int, from, to types.ChapterStatus) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE chapters SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE number = ? AND status = ?`,
		string(to), number, string(from))
	if err != nil {
		return false, types.NewAppError(types.ErrStorage, "failed to claim chapter", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, types.NewAppError(types.ErrStorage, "failed to read claim result", err)
	}
	return n == 1, nil
}

// CommitTranslation persists every derived field of a translated chapter in a
// single transaction: translated text, title, summary, timing, the status
// move to translated, new glossary terms, and the prompt log. Either all of
// it lands or none of it does.
func (s *Store) CommitTranslation(ch *types.Chapter, terms []types.GlossaryItem, prompts []PromptLog) error {
	tx, err := s.db.Begin()
	if err != nil {
		return types.NewAppError(types.ErrStorage, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE chapters SET
			translated_title = ?,
			translated_text = ?,
			summary = ?,
			translation_seconds = ?,
			translated_at = ?,
			status = ?,
			error_message = '',
			updated_at = CURRENT_TIMESTAMP
		WHERE number = ? AND status = ?`,
		ch.TranslatedTitle, ch.TranslatedText, ch.Summary,
		durationSeconds(ch.TranslationTime), ch.TranslatedAt,
		string(types.StatusTranslated), ch.Number, string(types.StatusTranslating))
	if err != nil {
		return types.NewAppError(types.ErrStorage, "failed to commit translation", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return types.NewAppErrorWithDetails(types.ErrStorage, "chapter not in translating state",
			fmt.Sprintf("chapter %d", ch.Number), nil)
	}

	for _, term := range terms {
		if err := upsertTermTx(tx, term); err != nil {
			return err
		}
	}
	for _, p := range prompts {
		if err := logPromptTx(tx, p); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return types.NewAppError(types.ErrStorage, "failed to commit transaction", err)
	}
	logger.Info("translation committed",
		logger.Int("chapter", ch.Number),
		logger.Int("terms", len(terms)))
	return nil
}

// CommitEdit persists the edited text alongside the untouched translation and
// moves the chapter from editing to edited.
func (s *Store) CommitEdit(ch *types.Chapter, prompts []PromptLog) error {
	tx, err := s.db.Begin()
	if err != nil {
		return types.NewAppError(types.ErrStorage, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE chapters SET
			edited_text = ?,
			editing_seconds = ?,
			edited_at = ?,
			status = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE number = ? AND status = ?`,
		ch.EditedText, durationSeconds(ch.EditingTime), ch.EditedAt,
		string(types.StatusEdited), ch.Number, string(types.StatusEditing))
	if err != nil {
		return types.NewAppError(types.ErrStorage, "failed to commit edit", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return types.NewAppErrorWithDetails(types.ErrStorage, "chapter not in editing state",
			fmt.Sprintf("chapter %d", ch.Number), nil)
	}

	for _, p := range prompts {
		if err := logPromptTx(tx, p); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return types.NewAppError(types.ErrStorage, "failed to commit transaction", err)
	}
	return nil
}

// MarkError moves a chapter to the error status with a diagnostic message.
// Original fields and any partial translated fields are left in place for
// manual inspection.
func (s *Store) MarkError(number int, msg string) error {
	_, err := s.db.Exec(
		`UPDATE chapters SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP WHERE number = ?`,
		string(types.StatusError), msg, number)
	if err != nil {
		return types.NewAppError(types.ErrStorage, "failed to mark chapter error", err)
	}
	return nil
}

// SaveProblemTranslation persists a translation that failed validation,
// appending a problem marker to the text, and moves the chapter to error.
// The text is kept so a human can salvage it.
func (s *Store) SaveProblemTranslation(ch *types.Chapter, marker, reason string) error {
	_, err := s.db.Exec(`
		UPDATE chapters SET
			translated_title = ?,
			translated_text = ?,
			status = ?,
			error_message = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE number = ?`,
		ch.TranslatedTitle, marker+"\n\n"+ch.TranslatedText,
		string(types.StatusError), reason, ch.Number)
	if err != nil {
		return types.NewAppError(types.ErrStorage, "failed to save problem translation", err)
	}
	return nil
}

// RecentSummaries returns up to limit summaries of translated chapters with
// numbers strictly below before, most recent chapter first.
func (s *Store) RecentSummaries(before, limit int) ([]types.ChapterSummary, error) {
	rows, err := s.db.Query(`
		SELECT number, summary FROM chapters
		WHERE number < ? AND status IN (?, ?, ?) AND summary != ''
		ORDER BY number DESC LIMIT ?`,
		before, string(types.StatusTranslated), string(types.StatusEditing), string(types.StatusEdited), limit)
	if err != nil {
		return nil, types.NewAppError(types.ErrStorage, "failed to query summaries", err)
	}
	defer rows.Close()

	var summaries []types.ChapterSummary
	for rows.Next() {
		var cs types.ChapterSummary
		if err := rows.Scan(&cs.Chapter, &cs.Summary); err != nil {
			return nil, types.NewAppError(types.ErrStorage, "failed to scan summary", err)
		}
		summaries = append(summaries, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrStorage, "failed to read summary rows", err)
	}
	return summaries, nil
}

// ExportChapters returns translated chapters as export records for the book
// packaging collaborator, ascending by chapter number. Edited text takes
// precedence over the raw translation when present.
func (s *Store) ExportChapters() ([]types.ExportChapter, error) {
	rows, err := s.db.Query(`
		SELECT number, translated_title,
			CASE WHEN edited_text != '' THEN edited_text ELSE translated_text END,
			summary
		FROM chapters
		WHERE status IN (?, ?)
		ORDER BY number ASC`,
		string(types.StatusTranslated), string(types.StatusEdited))
	if err != nil {
		return nil, types.NewAppError(types.ErrStorage, "failed to query export chapters", err)
	}
	defer rows.Close()

	var out []types.ExportChapter
	for rows.Next() {
		var ec types.ExportChapter
		if err := rows.Scan(&ec.Number, &ec.TranslatedTitle, &ec.TranslatedText, &ec.Summary); err != nil {
			return nil, types.NewAppError(types.ErrStorage, "failed to scan export chapter", err)
		}
		out = append(out, ec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrStorage, "failed to read export rows", err)
	}
	return out, nil
}

// ResetStaleClaims returns chapters stuck in translating or editing (a
// previous run crashed mid-chapter) to their pre-claim status, provided the
// claim is older than olderThan. Returns how many were reset.
func (s *Store) ResetStaleClaims(olderThan time.Duration) (int, error) {
	// CURRENT_TIMESTAMP stores "YYYY-MM-DD HH:MM:SS" in UTC; compare in the
	// same textual format.
	cutoff := time.Now().UTC().Add(-olderThan).Format("2006-01-02 15:04:05")
	total := 0

	for _, pair := range []struct {
		from, to types.ChapterStatus
	}{
		{types.StatusTranslating, types.StatusParsed},
		{types.StatusEditing, types.StatusTranslated},
	} {
		res, err := s.db.Exec(
			`UPDATE chapters SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE status = ? AND updated_at < ?`,
			string(pair.to), string(pair.from), cutoff)
		if err != nil {
			return total, types.NewAppError(types.ErrStorage, "failed to reset stale claims", err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}

	if total > 0 {
		logger.Warn("reset stale chapter claims", logger.Int("count", total))
	}
	return total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChapter(row rowScanner) (*types.Chapter, error) {
	var (
		ch                 types.Chapter
		status             string
		translationSeconds float64
		editingSeconds     float64
		translatedAt       sql.NullTime
		editedAt           sql.NullTime
	)
	err := row.Scan(&ch.Number, &ch.URL, &ch.OriginalTitle, &ch.OriginalText,
		&ch.WordCount, &ch.ParagraphCount, &ch.TranslatedTitle, &ch.TranslatedText,
		&ch.Summary, &translationSeconds, &translatedAt, &ch.EditedText,
		&editingSeconds, &editedAt, &status)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrStorage, "failed to scan chapter", err)
	}
	ch.Status = types.ChapterStatus(status)
	ch.TranslationTime = secondsDuration(translationSeconds)
	ch.EditingTime = secondsDuration(editingSeconds)
	if translatedAt.Valid {
		ch.TranslatedAt = translatedAt.Time
	}
	if editedAt.Valid {
		ch.EditedAt = editedAt.Time
	}
	return &ch, nil
}
