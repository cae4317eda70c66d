// Package translator orchestrates the chapter pipeline: claim a parsed
// chapter, build its context, translate it chunk by chunk, validate, derive
// the summary and glossary terms, and commit everything atomically. A run is
// resumable at chapter granularity: committed chapters are never redone.
package translator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"novel-translator/internal/config"
	"novel-translator/internal/gemini"
	"novel-translator/internal/glossary"
	"novel-translator/internal/logger"
	"novel-translator/internal/splitter"
	"novel-translator/internal/store"
	"novel-translator/internal/types"
	"novel-translator/internal/validator"
)

// problemMarker prefixes translations kept despite failing validation.
const problemMarker = "[ПРОБЛЕМА ПЕРЕВОДА - ТРЕБУЕТ ПРОВЕРКИ]"

// Generator is the LLM call surface the orchestrator depends on.
type Generator interface {
	Generate(ctx context.Context, req gemini.GenerateRequest) (string, error)
}

// Report summarizes one Run.
type Report struct {
	Translated int
	Skipped    int
	Failed     int
	Elapsed    time.Duration
}

// Translator drives the translation pipeline.
type Translator struct {
	cfg      *config.Config
	store    *store.Store
	glossary *glossary.Service
	client   Generator
	check    *validator.Validator

	// sleep is injectable so tests skip the between-chapter delay.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Translator over its collaborators.
func New(cfg *config.Config, st *store.Store, gl *glossary.Service, client Generator) *Translator {
	return &Translator{
		cfg:      cfg,
		store:    st,
		glossary: gl,
		client:   client,
		check:    validator.New(cfg.Validation),
		sleep:    sleepCtx,
	}
}

// WithSleep replaces the inter-chapter delay function (tests).
func (t *Translator) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Translator {
	t.sleep = fn
	return t
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run translates all claimable chapters in ascending order. Per-chapter
// failures are recorded and the run continues; only a fatal executor error
// (all keys exhausted past the backoff schedule) or cancellation stops it.
// Cancellation is honored between chapters, never mid-chapter, so no
// commit is ever half-done.
func (t *Translator) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{}

	chapters, err := t.store.ChaptersByStatus(types.StatusParsed, t.cfg.MaxChapters)
	if err != nil {
		return report, err
	}
	logger.Info("translation run starting", logger.Int("chapters", len(chapters)))

	for i, ch := range chapters {
		if err := ctx.Err(); err != nil {
			report.Elapsed = time.Since(start)
			return report, types.NewAppError(types.ErrInternal, "run canceled", err)
		}

		claimed, err := t.store.ClaimChapter(ch.Number)
		if err != nil {
			report.Elapsed = time.Since(start)
			return report, err
		}
		if !claimed {
			// Another run got here first, or the chapter moved on. Skipping
			// is what makes re-running the pipeline idempotent.
			report.Skipped++
			continue
		}

		if err := t.translateChapter(ctx, ch); err != nil {
			report.Failed++
			logger.Error("chapter failed", err, logger.Int("chapter", ch.Number))
			if markErr := t.store.MarkError(ch.Number, err.Error()); markErr != nil {
				logger.Error("failed to record chapter error", markErr, logger.Int("chapter", ch.Number))
			}
			if types.CodeOf(err) == types.ErrKeysExhausted {
				report.Elapsed = time.Since(start)
				return report, err
			}
			continue
		}
		report.Translated++

		if i < len(chapters)-1 && t.cfg.ChapterDelay > 0 {
			if err := t.sleep(ctx, t.cfg.ChapterDelay); err != nil {
				report.Elapsed = time.Since(start)
				return report, types.NewAppError(types.ErrInternal, "run canceled", err)
			}
		}
	}

	report.Elapsed = time.Since(start)
	logger.Info("translation run finished",
		logger.Int("translated", report.Translated),
		logger.Int("skipped", report.Skipped),
		logger.Int("failed", report.Failed),
		logger.Duration("elapsed", report.Elapsed))
	return report, nil
}

// translateChapter runs the full per-chapter pipeline. The chapter is
// already claimed; any error return moves it to the error status.
func (t *Translator) translateChapter(ctx context.Context, ch *types.Chapter) error {
	started := time.Now()
	logger.Info("translating chapter",
		logger.Int("chapter", ch.Number),
		logger.Int("words", ch.WordCount))

	tc, err := t.buildContext(ch.Number)
	if err != nil {
		return err
	}

	var prompts []store.PromptLog
	committed := false
	// Committed chapters persist their prompt log inside the commit
	// transaction; failed chapters must not lose theirs, it is the main
	// diagnostic for why a chapter went to error.
	defer func() {
		if committed {
			return
		}
		for _, p := range prompts {
			if logErr := t.store.LogPrompt(p); logErr != nil {
				logger.Warn("failed to persist prompt log",
					logger.Int("chapter", ch.Number), logger.Err(logErr))
			}
		}
	}()

	output, err := t.translateText(ctx, ch, tc, t.cfg.SplitThresholdWords, &prompts)
	if err != nil {
		return err
	}

	title, body := extractTitle(output, t.cfg.Title)
	if title == "" {
		title = ch.OriginalTitle
	}
	ch.TranslatedTitle = title
	ch.TranslatedText = body

	result := t.check.Validate(ch.OriginalText, body)
	if result.Critical && paragraphCritical(result, t.cfg.Validation) {
		// Paragraph collapse usually means the model merged everything into
		// a wall of text; a second full attempt often fixes it.
		logger.Warn("paragraph structure lost, retrying chapter once",
			logger.Int("chapter", ch.Number))
		output, err = t.translateText(ctx, ch, tc, t.cfg.SplitThresholdWords, &prompts)
		if err != nil {
			return err
		}
		title, body = extractTitle(output, t.cfg.Title)
		if title == "" {
			title = ch.OriginalTitle
		}
		ch.TranslatedTitle = title
		ch.TranslatedText = body
		result = t.check.Validate(ch.OriginalText, body)
	}

	if result.Critical {
		reason := strings.Join(result.Issues, "; ")
		if err := t.store.SaveProblemTranslation(ch, problemMarker, reason); err != nil {
			return err
		}
		return types.NewAppErrorWithDetails(types.ErrValidation,
			"translation failed validation", reason, nil)
	}
	for _, w := range result.Warnings {
		logger.Warn("validation warning", logger.Int("chapter", ch.Number), logger.String("warning", w))
	}

	ch.Summary = t.summarize(ctx, ch, &prompts)
	terms := t.extractTerms(ctx, ch, &prompts)

	ch.TranslationTime = time.Since(started)
	ch.TranslatedAt = time.Now().UTC()

	if err := t.store.CommitTranslation(ch, terms, prompts); err != nil {
		return err
	}
	committed = true
	t.recordGlossaryUsage(tc, ch)
	logger.Info("chapter translated",
		logger.Int("chapter", ch.Number),
		logger.Duration("took", ch.TranslationTime),
		logger.Float64("lengthRatio", result.Stats.LengthRatio),
		logger.Int("newTerms", len(terms)))
	return nil
}

// recordGlossaryUsage bumps usage counters for established terms that appear
// in the chapter source. Accounting only; failures are logged and dropped.
func (t *Translator) recordGlossaryUsage(tc *types.TranslationContext, ch *types.Chapter) {
	if tc == nil || tc.Glossary == nil {
		return
	}
	for _, group := range []map[string]string{
		tc.Glossary.Characters, tc.Glossary.Locations, tc.Glossary.Terms,
		tc.Glossary.Techniques, tc.Glossary.Artifacts,
	} {
		for src := range group {
			if !strings.Contains(ch.OriginalText, src) {
				continue
			}
			if err := t.glossary.RecordUsage(src); err != nil {
				logger.Warn("failed to record term usage",
					logger.String("term", src), logger.Err(err))
			}
		}
	}
}

// buildContext assembles the glossary and recent summaries fresh for one
// chapter; context is never cached across chapters.
func (t *Translator) buildContext(chapter int) (*types.TranslationContext, error) {
	gl, err := t.glossary.Lookup()
	if err != nil {
		return nil, err
	}
	summaries, err := t.store.RecentSummaries(chapter, t.cfg.ContextSummaries)
	if err != nil {
		return nil, err
	}
	return &types.TranslationContext{
		PreviousSummaries: summaries,
		Glossary:          gl,
	}, nil
}

// translateText translates the chapter source, pre-splitting above the word
// threshold and joining chunk outputs with blank lines.
func (t *Translator) translateText(ctx context.Context, ch *types.Chapter, tc *types.TranslationContext, threshold int, prompts *[]store.PromptLog) (string, error) {
	source := ch.OriginalText
	if ch.OriginalTitle != "" {
		source = ch.OriginalTitle + "\n\n" + source
	}

	chunks := []string{source}
	if splitter.WordCount(source) > threshold {
		chunks = splitter.Split(source, threshold)
		logger.Debug("chapter pre-split",
			logger.Int("chapter", ch.Number),
			logger.Int("chunks", len(chunks)))
	}

	parts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		out, err := t.translateChunk(ctx, ch, tc, chunk, threshold, prompts)
		if err != nil {
			return "", err
		}
		parts = append(parts, out)
	}
	return strings.Join(parts, "\n\n"), nil
}

// translateChunk translates one chunk. A content block or empty response is
// retried once with the chunk re-split at half the threshold: smaller inputs
// routinely clear safety filters and truncation that the whole chunk trips.
func (t *Translator) translateChunk(ctx context.Context, ch *types.Chapter, tc *types.TranslationContext, chunk string, threshold int, prompts *[]store.PromptLog) (string, error) {
	out, err := t.generate(ctx, ch.Number, "translate", translationSystemPrompt(t.cfg.TargetLanguage), buildTranslationPrompt(tc, chunk), prompts)
	if err == nil {
		return out, nil
	}

	code := types.CodeOf(err)
	if code != types.ErrContentBlocked && code != types.ErrEmptyResponse {
		return "", err
	}

	half := threshold / 2
	if half < 1 || splitter.WordCount(chunk) <= half {
		return "", err
	}
	logger.Warn("chunk rejected, re-splitting at half threshold",
		logger.Int("chapter", ch.Number),
		logger.String("reason", string(code)))

	var parts []string
	for _, sub := range splitter.Split(chunk, half) {
		subOut, subErr := t.generate(ctx, ch.Number, "translate", translationSystemPrompt(t.cfg.TargetLanguage), buildTranslationPrompt(tc, sub), prompts)
		if subErr != nil {
			return "", subErr
		}
		parts = append(parts, subOut)
	}
	return strings.Join(parts, "\n\n"), nil
}

// summarize produces the chapter digest for future context. The fallback
// chain guarantees a non-empty summary: translated text, then original text,
// then a templated placeholder.
func (t *Translator) summarize(ctx context.Context, ch *types.Chapter, prompts *[]store.PromptLog) string {
	out, err := t.generate(ctx, ch.Number, "summary", "", summaryPrompt(t.cfg.TargetLanguage, ch.TranslatedText), prompts)
	if err == nil && strings.TrimSpace(out) != "" {
		return strings.TrimSpace(out)
	}
	logger.Warn("summary from translation failed, falling back to original",
		logger.Int("chapter", ch.Number), logger.Err(err))

	out, err = t.generate(ctx, ch.Number, "summary", "", summaryPrompt(t.cfg.TargetLanguage, ch.OriginalText), prompts)
	if err == nil && strings.TrimSpace(out) != "" {
		return strings.TrimSpace(out)
	}
	logger.Warn("summary fallback failed, using placeholder",
		logger.Int("chapter", ch.Number), logger.Err(err))

	return fmt.Sprintf("Глава %d: краткое содержание недоступно.", ch.Number)
}

// extractTerms asks the model for new glossary candidates and keeps the
// ones that pass validation. Extraction failure is never fatal; the chapter
// simply contributes no terms.
func (t *Translator) extractTerms(ctx context.Context, ch *types.Chapter, prompts *[]store.PromptLog) []types.GlossaryItem {
	out, err := t.generate(ctx, ch.Number, "terms", "", termExtractionPrompt(ch.OriginalText, ch.TranslatedText), prompts)
	if err != nil {
		logger.Warn("term extraction failed", logger.Int("chapter", ch.Number), logger.Err(err))
		return nil
	}

	var kept []types.GlossaryItem
	for _, item := range parseTermSections(out, ch.Number) {
		if t.glossary.ValidateCandidate(item, ch.OriginalText, ch.TranslatedText) {
			kept = append(kept, item)
		}
	}
	return kept
}

// generate wraps one model call with prompt logging.
func (t *Translator) generate(ctx context.Context, chapter int, kind, system, user string, prompts *[]store.PromptLog) (string, error) {
	out, err := t.client.Generate(ctx, gemini.GenerateRequest{
		SystemPrompt:    system,
		UserPrompt:      user,
		Temperature:     t.cfg.Temperature,
		MaxOutputTokens: t.cfg.MaxOutputTokens,
	})
	log := store.PromptLog{
		Chapter:  chapter,
		Kind:     kind,
		Prompt:   user,
		Response: out,
		Success:  err == nil,
	}
	if err != nil {
		log.Response = err.Error()
	}
	*prompts = append(*prompts, log)
	return out, err
}

// paragraphCritical reports whether the only way the result went critical is
// paragraph collapse, the one failure mode worth a full re-translation.
func paragraphCritical(r validator.Result, th config.ValidationThresholds) bool {
	return r.Stats.ParagraphRatio > 0 && r.Stats.ParagraphRatio < th.MinParagraphRatio
}
