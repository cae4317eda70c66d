// Package types defines the core data types and error values shared by the
// translation pipeline.
package types

import "time"

// ChapterStatus tracks a chapter through the pipeline state machine.
type ChapterStatus string

const (
	// StatusPending - chapter is known but has no source text yet.
	StatusPending ChapterStatus = "pending"
	// StatusParsed - source text stored by the scraper; ready for translation.
	StatusParsed ChapterStatus = "parsed"
	// StatusTranslating - claimed by an orchestrator run.
	StatusTranslating ChapterStatus = "translating"
	// StatusTranslated - translation committed; stable resumption point.
	StatusTranslated ChapterStatus = "translated"
	// StatusEditing - claimed by the editing pass.
	StatusEditing ChapterStatus = "editing"
	// StatusEdited - stylistic editing committed.
	StatusEdited ChapterStatus = "edited"
	// StatusError - needs manual intervention; original fields preserved.
	StatusError ChapterStatus = "error"
)

// Chapter is one unit of serialized narrative content, uniquely numbered
// within a work. Original fields are written once by the scraper collaborator;
// translated fields are written by the orchestrator.
type Chapter struct {
	Number         int
	URL            string
	OriginalTitle  string
	OriginalText   string
	WordCount      int
	ParagraphCount int

	TranslatedTitle string
	TranslatedText  string
	Summary         string
	TranslationTime time.Duration
	TranslatedAt    time.Time

	EditedText  string
	EditedAt    time.Time
	EditingTime time.Duration

	Status ChapterStatus
}

// TermCategory classifies a glossary entry.
type TermCategory string

const (
	CategoryCharacter TermCategory = "character"
	CategoryLocation  TermCategory = "location"
	CategoryTerm      TermCategory = "term"
	CategoryTechnique TermCategory = "technique"
	CategoryArtifact  TermCategory = "artifact"
)

// ValidCategory reports whether c is one of the closed category values.
func ValidCategory(c TermCategory) bool {
	switch c {
	case CategoryCharacter, CategoryLocation, CategoryTerm, CategoryTechnique, CategoryArtifact:
		return true
	}
	return false
}

// GlossaryItem maps a source-language term to its established translation.
// The source term is unique per work; the first occurrence wins.
type GlossaryItem struct {
	SourceTerm       string
	TargetTerm       string
	Category         TermCategory
	FirstChapter     int
	UsageCount       int
	Active           bool
}

// Glossary groups active items by category for context building.
type Glossary struct {
	Characters map[string]string
	Locations  map[string]string
	Terms      map[string]string
	Techniques map[string]string
	Artifacts  map[string]string
}

// Size returns the total number of entries across all categories.
func (g *Glossary) Size() int {
	return len(g.Characters) + len(g.Locations) + len(g.Terms) + len(g.Techniques) + len(g.Artifacts)
}

// ChapterSummary is a prior-chapter digest used as translation context.
type ChapterSummary struct {
	Chapter int
	Summary string
}

// TranslationContext is rebuilt fresh before every chapter translation;
// it is never cached or persisted on its own.
type TranslationContext struct {
	PreviousSummaries []ChapterSummary
	Glossary          *Glossary
}

// ExportChapter is the record handed to the EPUB packaging collaborator.
// Markup and formatting are entirely the consumer's concern.
type ExportChapter struct {
	Number          int
	TranslatedTitle string
	TranslatedText  string
	Summary         string
}
