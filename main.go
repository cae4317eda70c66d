// Command novel-translator drives the chapter translation pipeline: it loads
// configuration, recovers stale claims from crashed runs, and executes the
// translation and/or editing passes over the SQLite chapter store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"novel-translator/internal/config"
	"novel-translator/internal/editor"
	"novel-translator/internal/gemini"
	"novel-translator/internal/glossary"
	"novel-translator/internal/keypool"
	"novel-translator/internal/logger"
	"novel-translator/internal/splitter"
	"novel-translator/internal/store"
	"novel-translator/internal/translator"
	"novel-translator/internal/types"
)

func main() {
	var (
		configPath  = flag.String("config", "novel-translator-config.json", "path to the JSON config file")
		dbPath      = flag.String("db", "", "override the database path from config")
		chapters    = flag.Int("chapters", 0, "max chapters to process this run (0 = all)")
		runEdit     = flag.Bool("edit", false, "run the editing pass over translated chapters")
		noTranslate = flag.Bool("no-translate", false, "skip the translation pass")
		importPath  = flag.String("import", "", "load parsed chapters from this JSON file before running")
		showStats   = flag.Bool("stats", false, "print pipeline statistics and exit")
		exportPath  = flag.String("export", "", "write translated chapters as JSON to this file and exit")
		verbose     = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	if err := run(*configPath, *dbPath, *chapters, *runEdit, *noTranslate, *showStats, *importPath, *exportPath, *verbose); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(configPath, dbPath string, chapters int, runEdit, noTranslate, showStats bool, importPath, exportPath string, verbose bool) error {
	logCfg := logger.DefaultConfig()
	if verbose {
		logCfg.Level = logger.LevelDebug
	}
	if err := logger.Init(logCfg); err != nil {
		return err
	}
	defer logger.Close()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if chapters > 0 {
		cfg.MaxChapters = chapters
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	if showStats {
		return printStats(st)
	}
	if exportPath != "" {
		return exportChapters(st, exportPath)
	}
	if importPath != "" {
		if err := importChapters(st, importPath); err != nil {
			return err
		}
	}

	// Claims left behind by a crashed run go back to their pre-claim status
	// so this run can pick them up.
	if _, err := st.ResetStaleClaims(cfg.StaleClaimAge); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool := keypool.New(cfg.APIKeys)
	client := gemini.NewClient(pool, cfg.Model, cfg.RequestTimeout, gemini.WithStats(st))

	if !noTranslate {
		gl := glossary.New(st)
		report, err := translator.New(cfg, st, gl, client).Run(ctx)
		fmt.Printf("translation: %d translated, %d skipped, %d failed in %s\n",
			report.Translated, report.Skipped, report.Failed, report.Elapsed.Round(time.Second))
		if err != nil {
			return err
		}
	}

	if runEdit {
		report, err := editor.New(cfg, st, client).Run(ctx)
		fmt.Printf("editing: %d edited, %d skipped, %d failed\n",
			report.Edited, report.Skipped, report.Failed)
		if err != nil {
			return err
		}
	}
	return nil
}

// importChapters loads scraper output: a JSON array of parsed chapter
// records. Word and paragraph counts are derived here so the scraper side
// stays format-only.
func importChapters(st *store.Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var records []struct {
		Number int    `json:"number"`
		URL    string `json:"url"`
		Title  string `json:"title"`
		Text   string `json:"text"`
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("invalid import file %s: %w", path, err)
	}
	for _, r := range records {
		ch := &types.Chapter{
			Number:         r.Number,
			URL:            r.URL,
			OriginalTitle:  r.Title,
			OriginalText:   r.Text,
			WordCount:      splitter.WordCount(r.Text),
			ParagraphCount: len(splitter.Paragraphs(r.Text)),
		}
		if err := st.SaveParsedChapter(ch); err != nil {
			return err
		}
	}
	fmt.Printf("imported %d chapters from %s\n", len(records), path)
	return nil
}

func printStats(st *store.Store) error {
	stats, err := st.Stats()
	if err != nil {
		return err
	}
	fmt.Printf("chapters: %d total\n", stats.TotalChapters)
	for status, count := range stats.ChaptersByStatus {
		fmt.Printf("  %-12s %d\n", status, count)
	}
	fmt.Printf("glossary terms: %d\n", stats.GlossaryTerms)
	fmt.Printf("API requests: %d (%d failed)\n", stats.TotalRequests, stats.TotalFailures)
	return nil
}

func exportChapters(st *store.Store, path string) error {
	chapters, err := st.ExportChapters()
	if err != nil {
		return err
	}
	out := make([]map[string]any, 0, len(chapters))
	for _, ch := range chapters {
		out = append(out, map[string]any{
			"seq":              ch.Number,
			"translated_title": ch.TranslatedTitle,
			"translated_text":  ch.TranslatedText,
			"summary":          ch.Summary,
		})
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	fmt.Printf("exported %d chapters to %s\n", len(chapters), path)
	return nil
}
