package translator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novel-translator/internal/config"
	"novel-translator/internal/gemini"
	"novel-translator/internal/glossary"
	"novel-translator/internal/store"
	"novel-translator/internal/types"
)

const promptTextMarker = "TEXT TO TRANSLATE:\n\n"

// fakeGen scripts LLM behavior per call kind. The default translate behavior
// echoes the chunk back with a short Russian tail, which keeps validation
// ratios near 1.0 and puts the extracted term's rendering into the output.
type fakeGen struct {
	calls          int
	translateCalls int
	onTranslate    func(call int, chunk string) (string, error)
}

func (f *fakeGen) Generate(_ context.Context, req gemini.GenerateRequest) (string, error) {
	f.calls++

	if i := strings.Index(req.UserPrompt, promptTextMarker); i >= 0 {
		f.translateCalls++
		chunk := req.UserPrompt[i+len(promptTextMarker):]
		if f.onTranslate != nil {
			return f.onTranslate(f.translateCalls, chunk)
		}
		return chunk + " Ли Мин остановился у ворот.", nil
	}
	if strings.HasPrefix(req.UserPrompt, "Summarize") {
		return "Краткое содержание главы.", nil
	}
	// Term extraction: one good candidate, one stopword, one whose target
	// the model never actually wrote into the translation.
	return "CHARACTERS:\n- 李明 = Ли Мин\nLOCATIONS:\n- 城门 = Несуществующие Врата\nTERMS:\n- the = неправильно", nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.APIKeys = []string{"test"}
	cfg.ChapterDelay = 0
	return cfg
}

func newFixture(t *testing.T, gen Generator) (*Translator, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := testConfig()
	tr := New(cfg, st, glossary.New(st), gen)
	return tr, st
}

func sourceChapter(number int) *types.Chapter {
	text := strings.Join([]string{
		"李明走在路上，看着天空。周围安静而平和，他想起了那 3 个人。",
		"他继续往前走，远处的山在暮色中渐渐模糊。",
		"夜幕降临的时候，他终于到达了城门。",
	}, "\n\n")
	return &types.Chapter{
		Number:        number,
		URL:           "https://example.com/ch",
		OriginalTitle: "第一章 出发",
		OriginalText:  text,
		WordCount:     60,
	}
}

func TestRunTranslatesChapter(t *testing.T) {
	gen := &fakeGen{}
	tr, st := newFixture(t, gen)
	require.NoError(t, st.SaveParsedChapter(sourceChapter(1)))

	report, err := tr.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Translated)
	assert.Equal(t, 0, report.Failed)

	ch, err := st.Chapter(1)
	require.NoError(t, err)
	assert.Equal(t, types.StatusTranslated, ch.Status)
	assert.NotEmpty(t, ch.TranslatedText)
	assert.Equal(t, "Краткое содержание главы.", ch.Summary)
	assert.False(t, ch.TranslatedAt.IsZero())

	// Only the term whose rendering appears in the translation landed; the
	// stopword and the hallucinated rendering were both dropped.
	items, err := st.GlossaryItems()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "李明", items[0].SourceTerm)
	assert.Equal(t, "Ли Мин", items[0].TargetTerm)
	assert.Equal(t, types.CategoryCharacter, items[0].Category)
}

func TestRunIsIdempotent(t *testing.T) {
	gen := &fakeGen{}
	tr, st := newFixture(t, gen)
	require.NoError(t, st.SaveParsedChapter(sourceChapter(1)))

	_, err := tr.Run(context.Background())
	require.NoError(t, err)
	callsAfterFirst := gen.calls

	// A second run finds nothing claimable and makes no model calls.
	report, err := tr.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Translated)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, callsAfterFirst, gen.calls)
}

func TestRunContinuesPastFailedChapter(t *testing.T) {
	gen := &fakeGen{
		onTranslate: func(call int, chunk string) (string, error) {
			if strings.Contains(chunk, "第一章") {
				// Chapter 1 comes back hopelessly truncated, every time.
				return "Глава 1\n\nКоротко.", nil
			}
			return chunk, nil
		},
	}
	tr, st := newFixture(t, gen)
	require.NoError(t, st.SaveParsedChapter(sourceChapter(1)))

	ch2 := sourceChapter(2)
	ch2.OriginalTitle = "第二章"
	ch2.OriginalText = strings.ReplaceAll(ch2.OriginalText, "第一章", "第二章")
	require.NoError(t, st.SaveParsedChapter(ch2))

	report, err := tr.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Translated)

	// The failed chapter keeps its text under a problem marker.
	failed, err := st.Chapter(1)
	require.NoError(t, err)
	assert.Equal(t, types.StatusError, failed.Status)
	assert.Contains(t, failed.TranslatedText, problemMarker)

	// Its prompt log survives the failure; that log is the main evidence for
	// diagnosing why the chapter went to error.
	logs, err := st.Prompts(1)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, "translate", logs[0].Kind)

	ok, err := st.Chapter(2)
	require.NoError(t, err)
	assert.Equal(t, types.StatusTranslated, ok.Status)
}

func TestRunRetriesParagraphCollapse(t *testing.T) {
	gen := &fakeGen{
		onTranslate: func(call int, chunk string) (string, error) {
			if call == 1 {
				// First attempt merges every paragraph into one block.
				return strings.ReplaceAll(chunk, "\n\n", " "), nil
			}
			return chunk, nil
		},
	}
	tr, st := newFixture(t, gen)
	require.NoError(t, st.SaveParsedChapter(sourceChapter(1)))

	report, err := tr.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Translated)
	assert.Equal(t, 2, gen.translateCalls)

	ch, err := st.Chapter(1)
	require.NoError(t, err)
	assert.Equal(t, types.StatusTranslated, ch.Status)
	assert.Contains(t, ch.TranslatedText, "\n\n")
}

func TestRunResplitsOnContentBlock(t *testing.T) {
	blocked := true
	gen := &fakeGen{
		onTranslate: func(call int, chunk string) (string, error) {
			if blocked {
				blocked = false
				return "", types.NewAppError(types.ErrContentBlocked, "blocked", nil)
			}
			return chunk, nil
		},
	}
	tr, st := newFixture(t, gen)
	// Above the chapter's size, so no pre-split, but with a half threshold
	// small enough that the blocked chunk can be re-split.
	tr.cfg.SplitThresholdWords = 100
	require.NoError(t, st.SaveParsedChapter(sourceChapter(1)))

	report, err := tr.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Translated)
	// One blocked call plus the re-split pieces.
	assert.GreaterOrEqual(t, gen.translateCalls, 2)

	ch, err := st.Chapter(1)
	require.NoError(t, err)
	assert.Equal(t, types.StatusTranslated, ch.Status)
}

func TestRunSummaryFallbackToPlaceholder(t *testing.T) {
	gen := &fakeGenSummaryFail{}
	tr, st := newFixture(t, gen)
	require.NoError(t, st.SaveParsedChapter(sourceChapter(1)))

	report, err := tr.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Translated)

	ch, err := st.Chapter(1)
	require.NoError(t, err)
	// Both summary attempts failed but the chapter still committed with a
	// non-empty placeholder.
	assert.NotEmpty(t, ch.Summary)
	assert.Contains(t, ch.Summary, "1")
}

// fakeGenSummaryFail translates fine but fails every summary call.
type fakeGenSummaryFail struct {
	inner fakeGen
}

func (f *fakeGenSummaryFail) Generate(ctx context.Context, req gemini.GenerateRequest) (string, error) {
	if strings.HasPrefix(req.UserPrompt, "Summarize") {
		return "", types.NewAppError(types.ErrAPICall, "summary failed", nil)
	}
	return f.inner.Generate(ctx, req)
}

func TestRunRecordsGlossaryUsage(t *testing.T) {
	gen := &fakeGen{}
	tr, st := newFixture(t, gen)

	// 李明 is already established before this chapter is translated.
	require.NoError(t, st.UpsertTerm(types.GlossaryItem{
		SourceTerm: "李明", TargetTerm: "Ли Мин", Category: types.CategoryCharacter,
	}))
	require.NoError(t, st.SaveParsedChapter(sourceChapter(1)))

	_, err := tr.Run(context.Background())
	require.NoError(t, err)

	items, err := st.GlossaryItems()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].UsageCount)
}

func TestRunHonorsCancellation(t *testing.T) {
	gen := &fakeGen{}
	tr, st := newFixture(t, gen)
	require.NoError(t, st.SaveParsedChapter(sourceChapter(1)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := tr.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, 0, report.Translated)
	assert.Equal(t, 0, gen.calls)
}

func TestExtractTitle(t *testing.T) {
	h := config.Default().Title

	tests := []struct {
		name      string
		output    string
		wantTitle string
	}{
		{"keyword title", "Глава 1: Начало\n\nОн вышел из дома.", "Глава 1: Начало"},
		{"digits only", "12. Дорога\n\nОн вышел из дома.", "12. Дорога"},
		{"sentence first line", "Он вышел из дома и пошёл.\n\nДальше был лес.", ""},
		{"no keyword no digits", "Начало пути\n\nОн вышел из дома.", ""},
		{"single line", "Просто текст без переносов.", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, body := extractTitle(tt.output, h)
			if title != tt.wantTitle {
				t.Errorf("title = %q, want %q", title, tt.wantTitle)
			}
			if tt.wantTitle != "" && strings.Contains(body, tt.wantTitle) {
				t.Error("body must not contain the extracted title")
			}
			if body == "" {
				t.Error("body must never be empty")
			}
		})
	}
}

func TestParseTermSections(t *testing.T) {
	output := `CHARACTERS:
- 李明 = Ли Мин
- 张伟 = Чжан Вэй
LOCATIONS:
- 青云山 = гора Цинъюнь
TECHNIQUES:
not a list line
- 御剑术 = техника полёта на мече
garbage without equals
`
	items := parseTermSections(output, 7)
	require.Len(t, items, 4)
	assert.Equal(t, types.CategoryCharacter, items[0].Category)
	assert.Equal(t, "Ли Мин", items[0].TargetTerm)
	assert.Equal(t, types.CategoryLocation, items[2].Category)
	assert.Equal(t, types.CategoryTechnique, items[3].Category)
	for _, item := range items {
		assert.Equal(t, 7, item.FirstChapter)
	}
}
