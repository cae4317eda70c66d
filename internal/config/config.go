// Package config provides configuration management for the translation
// pipeline. Settings come from a JSON config file merged over defaults, with
// API credentials loaded from the environment (.env supported).
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"novel-translator/internal/logger"
	"novel-translator/internal/types"
)

const (
	// EnvAPIKeys holds comma-separated Gemini API keys.
	EnvAPIKeys = "GEMINI_API_KEYS"
	// EnvModel optionally overrides the model name.
	EnvModel = "GEMINI_MODEL"
	// EnvTemperature optionally overrides the generation temperature.
	EnvTemperature = "TEMPERATURE"

	// DefaultModel is the Gemini model used for translation calls.
	DefaultModel = "gemini-2.5-flash"
	// DefaultTargetLanguage is the language chapters are translated into.
	DefaultTargetLanguage = "Russian"
	// DefaultTemperature keeps translations close to the source.
	DefaultTemperature = 0.1
	// DefaultMaxOutputTokens bounds one generation response.
	DefaultMaxOutputTokens = 16384
	// DefaultRequestTimeout is generous: large-chapter responses are slow.
	DefaultRequestTimeout = 3 * time.Minute
	// DefaultContextSummaries is how many prior-chapter summaries feed the
	// translation context.
	DefaultContextSummaries = 3
	// DefaultSplitThresholdWords triggers proactive chapter splitting.
	DefaultSplitThresholdWords = 1200
	// DefaultChapterDelay is the pause between chapters, spreading quota use.
	DefaultChapterDelay = 5 * time.Second
	// DefaultStaleClaimAge is how old a translating claim must be before the
	// startup recovery pass resets it back to parsed.
	DefaultStaleClaimAge = 2 * time.Hour
)

// ValidationThresholds are the tunable fidelity limits applied by the
// validator. Values are the ones the reference pipeline converged on.
type ValidationThresholds struct {
	MinLengthRatio    float64 `json:"min_length_ratio"`    // below: critical
	WarnLengthRatio   float64 `json:"warn_length_ratio"`   // below: warning
	MaxLengthRatio    float64 `json:"max_length_ratio"`    // above: warning
	MinParagraphRatio float64 `json:"min_paragraph_ratio"` // below: critical
	MaxParagraphDiff  int     `json:"max_paragraph_diff"`  // above: warning
}

// TitleHeuristics control extraction of a translated title from the first
// line of model output. The thresholds are empirically tuned, not exact.
type TitleHeuristics struct {
	MaxLength int      `json:"max_length"`
	Keywords  []string `json:"keywords"`
}

// Config is the explicit configuration struct handed to the orchestrator at
// construction time. There are no process-wide mutable toggles.
type Config struct {
	APIKeys         []string      `json:"-"` // environment only, never persisted
	Model           string        `json:"model"`
	TargetLanguage  string        `json:"target_language"`
	Temperature     float64       `json:"temperature"`
	MaxOutputTokens int           `json:"max_output_tokens"`
	RequestTimeout  time.Duration `json:"-"`
	RequestTimeoutS int           `json:"request_timeout_seconds"`

	ContextSummaries    int           `json:"context_summaries"`
	SplitThresholdWords int           `json:"split_threshold_words"`
	ChapterDelay        time.Duration `json:"-"`
	ChapterDelayS       int           `json:"chapter_delay_seconds"`
	MaxChapters         int           `json:"max_chapters"` // 0 = no cap
	StaleClaimAge       time.Duration `json:"-"`
	StaleClaimMinutes   int           `json:"stale_claim_minutes"`

	Validation ValidationThresholds `json:"validation"`
	Title      TitleHeuristics      `json:"title"`

	DBPath string `json:"db_path"`
}

// Default returns a Config with working defaults for everything except the
// API keys, which must come from the environment.
func Default() *Config {
	return &Config{
		Model:           DefaultModel,
		TargetLanguage:  DefaultTargetLanguage,
		Temperature:     DefaultTemperature,
		MaxOutputTokens: DefaultMaxOutputTokens,
		RequestTimeout:  DefaultRequestTimeout,

		ContextSummaries:    DefaultContextSummaries,
		SplitThresholdWords: DefaultSplitThresholdWords,
		ChapterDelay:        DefaultChapterDelay,
		StaleClaimAge:       DefaultStaleClaimAge,

		Validation: ValidationThresholds{
			MinLengthRatio:    0.7,
			WarnLengthRatio:   0.9,
			MaxLengthRatio:    1.6,
			MinParagraphRatio: 0.6,
			MaxParagraphDiff:  2,
		},
		Title: TitleHeuristics{
			MaxLength: 100,
			Keywords:  []string{"глава", "chapter", "章"},
		},

		DBPath: "translations.db",
	}
}

// Load reads the JSON config at path (missing file falls back to defaults),
// then applies environment overrides. A .env file in the working directory is
// honored the same way the reference tooling honored python-dotenv.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, types.NewAppError(types.ErrConfig, "invalid config file", err)
			}
			logger.Debug("config file loaded", logger.String("path", path))
		case os.IsNotExist(err):
			logger.Info("config file not found, using defaults", logger.String("path", path))
		default:
			return nil, types.NewAppError(types.ErrConfig, "failed to read config file", err)
		}
	}

	// Seconds fields exist only for JSON round-tripping.
	if cfg.RequestTimeoutS > 0 {
		cfg.RequestTimeout = time.Duration(cfg.RequestTimeoutS) * time.Second
	}
	if cfg.ChapterDelayS > 0 {
		cfg.ChapterDelay = time.Duration(cfg.ChapterDelayS) * time.Second
	}
	if cfg.StaleClaimMinutes > 0 {
		cfg.StaleClaimAge = time.Duration(cfg.StaleClaimMinutes) * time.Minute
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers environment variables over the file values. godotenv.Load
// is best effort: a missing .env just means the variables come from the
// process environment.
func applyEnv(cfg *Config) {
	_ = godotenv.Load()

	if raw := os.Getenv(EnvAPIKeys); raw != "" {
		var keys []string
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		cfg.APIKeys = keys
	}
	if model := os.Getenv(EnvModel); model != "" {
		cfg.Model = model
	}
	if raw := os.Getenv(EnvTemperature); raw != "" {
		if t, err := strconv.ParseFloat(raw, 64); err == nil {
			cfg.Temperature = t
		}
	}
}

// Validate checks the invariants the pipeline depends on.
func (c *Config) Validate() error {
	if len(c.APIKeys) == 0 {
		return types.NewAppErrorWithDetails(types.ErrConfig,
			"no API keys configured",
			"set "+EnvAPIKeys+" in the environment or .env (comma-separated)", nil)
	}
	if c.Model == "" {
		return types.NewAppError(types.ErrConfig, "model name is empty", nil)
	}
	if c.ContextSummaries < 0 {
		return types.NewAppError(types.ErrConfig, "context_summaries must be >= 0", nil)
	}
	if c.SplitThresholdWords <= 0 {
		return types.NewAppError(types.ErrConfig, "split_threshold_words must be positive", nil)
	}
	v := c.Validation
	if v.MinLengthRatio <= 0 || v.WarnLengthRatio < v.MinLengthRatio || v.MaxLengthRatio <= v.WarnLengthRatio {
		return types.NewAppError(types.ErrConfig, "length ratio thresholds are not ordered", nil)
	}
	if v.MinParagraphRatio <= 0 || v.MinParagraphRatio >= 1 {
		return types.NewAppError(types.ErrConfig, "min_paragraph_ratio must be in (0, 1)", nil)
	}
	return nil
}

// Save writes the JSON representation of c to path.
func (c *Config) Save(path string) error {
	c.RequestTimeoutS = int(c.RequestTimeout / time.Second)
	c.ChapterDelayS = int(c.ChapterDelay / time.Second)
	c.StaleClaimMinutes = int(c.StaleClaimAge / time.Minute)
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return types.NewAppError(types.ErrInternal, "failed to marshal config", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return types.NewAppError(types.ErrConfig, "failed to write config file", err)
	}
	return nil
}
