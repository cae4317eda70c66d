// Package glossary keeps term translations consistent across chapters. Terms
// are grouped by category for prompt building, and new candidates extracted
// from model output pass a validation gate before entering the store.
package glossary

import (
	"strings"

	"novel-translator/internal/logger"
	"novel-translator/internal/store"
	"novel-translator/internal/types"
)

// Service exposes glossary operations over the store.
type Service struct {
	store *store.Store
}

// New creates a glossary Service.
func New(st *store.Store) *Service {
	return &Service{store: st}
}

// Lookup returns the active glossary grouped by category.
func (s *Service) Lookup() (*types.Glossary, error) {
	items, err := s.store.GlossaryItems()
	if err != nil {
		return nil, err
	}

	g := &types.Glossary{
		Characters: make(map[string]string),
		Locations:  make(map[string]string),
		Terms:      make(map[string]string),
		Techniques: make(map[string]string),
		Artifacts:  make(map[string]string),
	}
	for _, item := range items {
		switch item.Category {
		case types.CategoryCharacter:
			g.Characters[item.SourceTerm] = item.TargetTerm
		case types.CategoryLocation:
			g.Locations[item.SourceTerm] = item.TargetTerm
		case types.CategoryTechnique:
			g.Techniques[item.SourceTerm] = item.TargetTerm
		case types.CategoryArtifact:
			g.Artifacts[item.SourceTerm] = item.TargetTerm
		default:
			g.Terms[item.SourceTerm] = item.TargetTerm
		}
	}
	return g, nil
}

// Upsert records a term translation. The first occurrence of a source term
// wins; later conflicting translations are silently ignored so established
// names never drift.
func (s *Service) Upsert(item types.GlossaryItem) error {
	if !types.ValidCategory(item.Category) {
		item.Category = types.CategoryTerm
	}
	return s.store.UpsertTerm(item)
}

// RecordUsage bumps the usage counter for a term that appeared in a chapter.
func (s *Service) RecordUsage(sourceTerm string) error {
	return s.store.RecordTermUsage(sourceTerm)
}

// stopwords are common words the extractor tends to misreport as terms.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true,
	"in": true, "on": true, "to": true, "he": true, "she": true, "it": true,
	"they": true, "his": true, "her": true, "was": true, "is": true,
	"chapter": true, "said": true, "man": true, "woman": true, "boy": true,
	"girl": true, "time": true, "day": true, "way": true, "eyes": true,
}

const (
	minTermLength = 2
	maxTermLength = 50
)

// ValidateCandidate reports whether an extracted term pair is plausible:
// both sides non-empty and length-bounded, the source not a stopword, the
// source present in the original text, and the target present in the
// translated text. The last check is what keeps hallucinated translations
// out: a target term the model never actually used must not become the
// canonical rendering. Model extraction is noisy; invalid candidates are
// dropped, never fatal.
func (s *Service) ValidateCandidate(item types.GlossaryItem, originalText, translatedText string) bool {
	src := strings.TrimSpace(item.SourceTerm)
	dst := strings.TrimSpace(item.TargetTerm)

	if len([]rune(src)) < minTermLength || len([]rune(src)) > maxTermLength {
		return false
	}
	if len([]rune(dst)) < minTermLength || len([]rune(dst)) > maxTermLength {
		return false
	}
	if stopwords[strings.ToLower(src)] {
		return false
	}
	if !strings.Contains(strings.ToLower(originalText), strings.ToLower(src)) {
		logger.Debug("term candidate not found in source", logger.String("term", src))
		return false
	}
	if !strings.Contains(strings.ToLower(translatedText), strings.ToLower(dst)) {
		logger.Debug("term candidate not found in translation", logger.String("term", dst))
		return false
	}
	return true
}
