package store

import (
	"database/sql"

	"novel-translator/internal/types"
)

// GlossaryItems returns all active glossary entries ordered by source term.
func (s *Store) GlossaryItems() ([]types.GlossaryItem, error) {
	rows, err := s.db.Query(`
		SELECT source_term, target_term, category, first_chapter, usage_count, active
		FROM glossary WHERE active = 1 ORDER BY source_term ASC`)
	if err != nil {
		return nil, types.NewAppError(types.ErrStorage, "failed to query glossary", err)
	}
	defer rows.Close()

	var items []types.GlossaryItem
	for rows.Next() {
		var (
			item     types.GlossaryItem
			category string
		)
		if err := rows.Scan(&item.SourceTerm, &item.TargetTerm, &category,
			&item.FirstChapter, &item.UsageCount, &item.Active); err != nil {
			return nil, types.NewAppError(types.ErrStorage, "failed to scan glossary item", err)
		}
		item.Category = types.TermCategory(category)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrStorage, "failed to read glossary rows", err)
	}
	return items, nil
}

// UpsertTerm inserts a glossary entry. A duplicate source term is a no-op:
// the first recorded translation of a term stays authoritative so names do
// not drift between chapters.
func (s *Store) UpsertTerm(item types.GlossaryItem) error {
	tx, err := s.db.Begin()
	if err != nil {
		return types.NewAppError(types.ErrStorage, "failed to begin transaction", err)
	}
	defer tx.Rollback()
	if err := upsertTermTx(tx, item); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return types.NewAppError(types.ErrStorage, "failed to commit transaction", err)
	}
	return nil
}

func upsertTermTx(tx *sql.Tx, item types.GlossaryItem) error {
	_, err := tx.Exec(`
		INSERT INTO glossary (source_term, target_term, category, first_chapter, usage_count, active)
		VALUES (?, ?, ?, ?, 0, 1)
		ON CONFLICT(source_term) DO NOTHING`,
		item.SourceTerm, item.TargetTerm, string(item.Category), item.FirstChapter)
	if err != nil {
		return types.NewAppError(types.ErrStorage, "failed to upsert glossary term", err)
	}
	return nil
}

// RecordTermUsage increments the usage counter of a term. Unknown terms are
// ignored.
func (s *Store) RecordTermUsage(sourceTerm string) error {
	_, err := s.db.Exec(
		`UPDATE glossary SET usage_count = usage_count + 1 WHERE source_term = ?`, sourceTerm)
	if err != nil {
		return types.NewAppError(types.ErrStorage, "failed to record term usage", err)
	}
	return nil
}

// DeactivateTerm soft-deletes a glossary entry; it stops appearing in
// lookups but history is retained.
func (s *Store) DeactivateTerm(sourceTerm string) error {
	_, err := s.db.Exec(
		`UPDATE glossary SET active = 0 WHERE source_term = ?`, sourceTerm)
	if err != nil {
		return types.NewAppError(types.ErrStorage, "failed to deactivate term", err)
	}
	return nil
}
