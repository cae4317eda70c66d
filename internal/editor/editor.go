// Package editor runs the optional stylistic pass over translated chapters.
// Editing is multi-stage: an analysis call scores the raw translation and
// picks the stages to run; each stage rewrites the text and is individually
// guarded by a sanity check that discards any output that looks like the
// model mangled the chapter. The raw translation is never overwritten.
package editor

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"novel-translator/internal/config"
	"novel-translator/internal/gemini"
	"novel-translator/internal/logger"
	"novel-translator/internal/store"
	"novel-translator/internal/types"
)

// Generator is the LLM call surface the editor depends on.
type Generator interface {
	Generate(ctx context.Context, req gemini.GenerateRequest) (string, error)
}

// Report summarizes one editing run.
type Report struct {
	Edited  int
	Skipped int
	Failed  int
	Elapsed time.Duration
}

// strategy is what the analysis stage returns.
type strategy struct {
	QualityScore int  `json:"quality_score"`
	RunStyle     bool `json:"run_style"`
	RunDialogue  bool `json:"run_dialogue"`
	RunPolish    bool `json:"run_polish"`
}

// goodEnoughScore is the analysis score at which a chapter is committed as-is.
const goodEnoughScore = 9

// Sanity bounds for a single stage's output relative to its input.
const (
	minStageRatio = 0.7
	maxStageRatio = 2.0
	minStageChars = 100
	// Numbers up to this value may legitimately be spelled out by a
	// stylistic rewrite; larger ones must survive as digits.
	wordableNumber = 20
	maxLostNumbers = 2
)

// Editor drives the editing pass.
type Editor struct {
	cfg    *config.Config
	store  *store.Store
	client Generator
}

// New creates an Editor over its collaborators.
func New(cfg *config.Config, st *store.Store, client Generator) *Editor {
	return &Editor{cfg: cfg, store: st, client: client}
}

// Run edits all claimable translated chapters in ascending order,
// continuing past per-chapter failures. Cancellation is honored between
// chapters only.
func (e *Editor) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{}

	chapters, err := e.store.ChaptersByStatus(types.StatusTranslated, e.cfg.MaxChapters)
	if err != nil {
		return report, err
	}
	logger.Info("editing run starting", logger.Int("chapters", len(chapters)))

	for _, ch := range chapters {
		if err := ctx.Err(); err != nil {
			report.Elapsed = time.Since(start)
			return report, types.NewAppError(types.ErrInternal, "run canceled", err)
		}

		claimed, err := e.store.ClaimForEditing(ch.Number)
		if err != nil {
			report.Elapsed = time.Since(start)
			return report, err
		}
		if !claimed {
			report.Skipped++
			continue
		}

		if err := e.EditChapter(ctx, ch); err != nil {
			report.Failed++
			logger.Error("chapter edit failed", err, logger.Int("chapter", ch.Number))
			if markErr := e.store.MarkError(ch.Number, err.Error()); markErr != nil {
				logger.Error("failed to record edit error", markErr, logger.Int("chapter", ch.Number))
			}
			if types.CodeOf(err) == types.ErrKeysExhausted {
				report.Elapsed = time.Since(start)
				return report, err
			}
			continue
		}
		report.Edited++
	}

	report.Elapsed = time.Since(start)
	logger.Info("editing run finished",
		logger.Int("edited", report.Edited),
		logger.Int("skipped", report.Skipped),
		logger.Int("failed", report.Failed))
	return report, nil
}

// EditChapter runs the staged edit on one already-claimed chapter and
// commits the result. A chapter whose analysis scores it good enough is
// committed with the translation as its edited text.
func (e *Editor) EditChapter(ctx context.Context, ch *types.Chapter) error {
	started := time.Now()
	var prompts []store.PromptLog

	strat := e.analyze(ctx, ch, &prompts)
	text := ch.TranslatedText

	if strat.QualityScore < goodEnoughScore {
		if strat.RunStyle {
			text = e.runStage(ctx, ch.Number, "edit_style", stylePrompt(e.cfg.TargetLanguage, text), text, &prompts)
		}
		if strat.RunDialogue && hasDialogue(text) {
			text = e.runStage(ctx, ch.Number, "edit_dialogue", dialoguePrompt(e.cfg.TargetLanguage, text), text, &prompts)
		}
		if strat.RunPolish {
			text = e.runStage(ctx, ch.Number, "edit_polish", polishPrompt(e.cfg.TargetLanguage, text), text, &prompts)
		}
	} else {
		logger.Info("chapter already good, skipping edit stages",
			logger.Int("chapter", ch.Number),
			logger.Int("score", strat.QualityScore))
	}

	ch.EditedText = text
	ch.EditingTime = time.Since(started)
	ch.EditedAt = time.Now().UTC()
	return e.store.CommitEdit(ch, prompts)
}

// analyze asks the model for an editing strategy. On any failure the full
// default strategy runs; analysis is advisory, not load-bearing.
func (e *Editor) analyze(ctx context.Context, ch *types.Chapter, prompts *[]store.PromptLog) strategy {
	fallback := strategy{RunStyle: true, RunDialogue: true, RunPolish: true}

	out, err := e.generate(ctx, ch.Number, "edit_analysis", analysisPrompt(e.cfg.TargetLanguage, ch.TranslatedText), prompts)
	if err != nil {
		logger.Warn("edit analysis failed, using full strategy",
			logger.Int("chapter", ch.Number), logger.Err(err))
		return fallback
	}

	var strat strategy
	if err := json.Unmarshal([]byte(stripJSONFences(out)), &strat); err != nil {
		logger.Warn("edit analysis returned unparseable strategy",
			logger.Int("chapter", ch.Number), logger.Err(err))
		return fallback
	}
	if strat.QualityScore < 1 || strat.QualityScore > 10 {
		strat.QualityScore = 0
	}
	return strat
}

// runStage executes one edit stage and applies the sanity gate: output that
// fails the gate is discarded and the stage no-ops.
func (e *Editor) runStage(ctx context.Context, chapter int, kind, prompt, input string, prompts *[]store.PromptLog) string {
	out, err := e.generate(ctx, chapter, kind, prompt, prompts)
	if err != nil {
		logger.Warn("edit stage failed, keeping input",
			logger.Int("chapter", chapter), logger.String("stage", kind), logger.Err(err))
		return input
	}
	out = strings.TrimSpace(out)
	if reason := sanityCheck(input, out); reason != "" {
		logger.Warn("edit stage output rejected",
			logger.Int("chapter", chapter),
			logger.String("stage", kind),
			logger.String("reason", reason))
		return input
	}
	return out
}

func (e *Editor) generate(ctx context.Context, chapter int, kind, prompt string, prompts *[]store.PromptLog) (string, error) {
	out, err := e.client.Generate(ctx, gemini.GenerateRequest{
		UserPrompt:      prompt,
		Temperature:     e.cfg.Temperature,
		MaxOutputTokens: e.cfg.MaxOutputTokens,
	})
	log := store.PromptLog{
		Chapter:  chapter,
		Kind:     kind,
		Prompt:   prompt,
		Response: out,
		Success:  err == nil,
	}
	if err != nil {
		log.Response = err.Error()
	}
	*prompts = append(*prompts, log)
	return out, err
}

var numberPattern = regexp.MustCompile(`\d+`)

// sanityCheck decides whether a stage output is a plausible edit of its
// input. Returns a non-empty reason on rejection.
func sanityCheck(input, output string) string {
	if len([]rune(output)) < minStageChars {
		return "output too short"
	}
	ratio := float64(len([]rune(output))) / float64(len([]rune(input)))
	if ratio < minStageRatio || ratio > maxStageRatio {
		return "length ratio out of bounds"
	}

	outNums := make(map[string]int)
	for _, n := range numberPattern.FindAllString(output, -1) {
		outNums[n]++
	}
	lost := 0
	for _, n := range numberPattern.FindAllString(input, -1) {
		if outNums[n] > 0 {
			outNums[n]--
			continue
		}
		if len(n) <= 2 && n != "0" {
			// Small numbers turning into words is legitimate style.
			if v := atoiSafe(n); v <= wordableNumber {
				continue
			}
		}
		lost++
	}
	if lost > maxLostNumbers {
		return "too many numbers lost"
	}
	return ""
}

func atoiSafe(s string) int {
	v := 0
	for _, r := range s {
		v = v*10 + int(r-'0')
	}
	return v
}

// hasDialogue reports whether the text contains dialogue punctuation worth a
// dedicated stage: Russian dash-initial lines or any quote-mark style.
func hasDialogue(text string) bool {
	if strings.Contains(text, "«") || strings.Contains(text, "“") || strings.Contains(text, "\"") {
		return true
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "—") || strings.HasPrefix(line, "-") {
			return true
		}
	}
	return false
}

// stripJSONFences removes a markdown code fence the model often wraps JSON in.
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if i := strings.Index(s, "\n"); i >= 0 {
			s = s[i+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
