package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string            `toml:"environment"` // "development" or "production"
	Storage     StorageConfig     `toml:"storage"`
	Logging     LoggingConfig     `toml:"logging"`
	Entsoe      EntsoeConfig      `toml:"entsoe"`
	Run         RunConfig         `toml:"run"`
	Series      SeriesConfig      `toml:"series"`
	Features    FeaturesConfig    `toml:"features"`
	Bench       BenchConfig       `toml:"bench"`
	Diagnostics DiagnosticsConfig `toml:"diagnostics"`
	Grounding   GroundingConfig   `toml:"grounding"`
	Gemini      GeminiConfig      `toml:"gemini"`
	Claude      ClaudeConfig      `toml:"claude"`
	LLM         LLMConfig         `toml:"llm"`
	Report      ReportConfig      `toml:"report"`
	Scheduler   SchedulerConfig   `toml:"scheduler"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Format string   `toml:"format"` // "json" or "text"
	Output []string `toml:"output"` // "stdout", "file"
}

// EntsoeConfig contains ENTSO-E Transparency Platform API configuration
type EntsoeConfig struct {
	APIToken       string        `toml:"api_token"`       // securityToken for the RESTful API
	BaseURL        string        `toml:"base_url"`        // API base URL
	RateLimit      int           `toml:"rate_limit"`      // Requests per second
	RequestTimeout time.Duration `toml:"request_timeout"` // HTTP request timeout
	UseSnapshots   bool          `toml:"use_snapshots"`   // Reuse persisted fetches for identical zone+range
}

// RunConfig describes the default pipeline run: which border and window to analyze
type RunConfig struct {
	InDomain   string `toml:"in_domain" validate:"required"`  // EIC code of the in-zone
	OutDomain  string `toml:"out_domain" validate:"required"` // EIC code of the out-zone
	Days       int    `toml:"days" validate:"gt=0"`           // Trailing window length in days
	Resolution string `toml:"resolution" validate:"oneof=PT15M PT60M"`
}

// SeriesConfig controls time-series validation
type SeriesConfig struct {
	GapPolicy          string        `toml:"gap_policy" validate:"oneof=drop forward_fill flag"`
	IntervalTolerance  time.Duration `toml:"interval_tolerance"`   // Allowed jitter around the nominal interval
	RequireNonNegative bool          `toml:"require_non_negative"` // Congestion income is a revenue; reject negatives
}

// FeaturesConfig enumerates the engineered feature set
type FeaturesConfig struct {
	Lags                  []int     `toml:"lags" validate:"min=1,dive,gt=0"`
	Windows               []int     `toml:"windows" validate:"dive,gt=1"`
	WindowStats           []string  `toml:"window_stats" validate:"dive,oneof=mean std min max"`
	DiffSpans             []int     `toml:"diff_spans" validate:"dive,gt=0"`
	ZScoreWindow          int       `toml:"zscore_window" validate:"gte=0"`
	VolatilityWindow      int       `toml:"volatility_window" validate:"gte=0"`
	VolatilityPercentiles []float64 `toml:"volatility_percentiles" validate:"dive,gt=0,lt=1"`
	SpreadWindow          int       `toml:"spread_window" validate:"gte=0"` // Trailing max-min range window
	Intraday              bool      `toml:"intraday"`                       // hour/day-of-week/weekend columns
	Horizon               int       `toml:"horizon" validate:"gte=0"`       // Steps ahead; 0 predicts the feature timestamp itself
}

// BenchConfig controls the model roster and evaluation
type BenchConfig struct {
	SplitFraction float64 `toml:"split_fraction" validate:"gt=0,lt=1"`
	Season        int     `toml:"season" validate:"gte=0"`        // seasonal_naive period; 0 derives from resolution
	RollingWindow int     `toml:"rolling_window" validate:"gt=0"` // rolling_mean baseline window
	MAPEEpsilon   float64 `toml:"mape_epsilon" validate:"gt=0"`   // |actual| <= epsilon excluded from MAPE
	ForestTrees   int     `toml:"forest_trees" validate:"gt=0"`
	ForestDepth   int     `toml:"forest_max_depth" validate:"gt=0"`
	ForestMinLeaf int     `toml:"forest_min_split" validate:"gt=1"`
	ForestSeed    int64   `toml:"forest_seed"`
}

// DiagnosticsConfig controls residual analysis
type DiagnosticsConfig struct {
	AutocorrLags int `toml:"autocorr_lags" validate:"gt=0"` // Autocorrelation computed at lags 1..k
}

// GroundingConfig controls narrative generation and verification
type GroundingConfig struct {
	Tolerance   float64 `toml:"tolerance" validate:"gt=0,lt=1"` // Relative tolerance for numeric claims
	Model       string  `toml:"model"`                          // Model string; empty uses the default provider
	Timeout     string  `toml:"timeout"`                        // Backend call timeout as duration string
	Temperature float32 `toml:"temperature"`
	MaxTokens   int     `toml:"max_tokens"`
	TopFeatures int     `toml:"top_features" validate:"gt=0"` // Feature importances exposed in the payload
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"` // Google Gemini API key
	Model       string  `toml:"model"`   // Model for narrative generation
	Timeout     string  `toml:"timeout"` // Operation timeout as duration string
	RateLimit   string  `toml:"rate_limit"`
	Temperature float32 `toml:"temperature"`
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`    // Anthropic API key
	Model       string  `toml:"model"`      // Model for narrative generation
	MaxTokens   int     `toml:"max_tokens"` // Maximum tokens in response
	Timeout     string  `toml:"timeout"`    // Operation timeout as duration string
	RateLimit   string  `toml:"rate_limit"`
	Temperature float32 `toml:"temperature"`
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig contains unified configuration for all AI providers
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider" validate:"oneof=gemini claude"`
}

// ReportConfig controls artifact rendering
type ReportConfig struct {
	OutputDir string   `toml:"output_dir"`
	Formats   []string `toml:"formats" validate:"min=1,dive,oneof=markdown html pdf"`
}

// SchedulerConfig controls cron-driven batch re-runs
type SchedulerConfig struct {
	Enabled  bool           `toml:"enabled"`
	Schedule string         `toml:"schedule"` // Standard 5-field cron expression
	Borders  []BorderConfig `toml:"borders"`  // Extra borders beyond [run], re-run each firing
}

// BorderConfig names one bidding-zone border for scheduled batch runs
type BorderConfig struct {
	InDomain  string `toml:"in_domain"`
	OutDomain string `toml:"out_domain"`
}

// NewDefaultConfig creates a configuration with default values.
// Numeric knobs that affect model output live here, not scattered in code paths.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		Entsoe: EntsoeConfig{
			APIToken:       "", // User must provide securityToken (ENTSOE_SECURITY_TOKEN or config)
			BaseURL:        "https://web-api.tp.entsoe.eu/api",
			RateLimit:      2, // Transparency Platform allows 400 req/min; stay well under
			RequestTimeout: 30 * time.Second,
			UseSnapshots:   true,
		},
		Run: RunConfig{
			InDomain:   "10YDOM-REGION-1V", // Core flow-based region
			OutDomain:  "10YDOM-REGION-1V",
			Days:       28,
			Resolution: "PT15M",
		},
		Series: SeriesConfig{
			GapPolicy:          "flag", // Never invent data silently
			IntervalTolerance:  time.Second,
			RequireNonNegative: true,
		},
		Features: FeaturesConfig{
			Lags:                  []int{1, 2, 4, 96},
			Windows:               []int{4, 24, 96},
			WindowStats:           []string{"mean", "std", "min", "max"},
			DiffSpans:             []int{1, 4},
			ZScoreWindow:          96,
			VolatilityWindow:      96,
			VolatilityPercentiles: []float64{0.33, 0.66},
			SpreadWindow:          96,
			Intraday:              true,
			Horizon:               0,
		},
		Bench: BenchConfig{
			SplitFraction: 0.8,
			Season:        0, // Derived from run resolution: 96 for PT15M, 24 for PT60M
			RollingWindow: 24,
			MAPEEpsilon:   1e-8,
			ForestTrees:   300,
			ForestDepth:   12,
			ForestMinLeaf: 5,
			ForestSeed:    42,
		},
		Diagnostics: DiagnosticsConfig{
			AutocorrLags: 10,
		},
		Grounding: GroundingConfig{
			Tolerance:   0.01,
			Model:       "", // Empty uses llm.default_provider's model
			Timeout:     "180s",
			Temperature: 0.25,
			MaxTokens:   2000,
			TopFeatures: 5,
		},
		Gemini: GeminiConfig{
			APIKey:      "",
			Model:       "gemini-3-flash-preview",
			Timeout:     "5m",
			RateLimit:   "4s",
			Temperature: 0.25,
		},
		Claude: ClaudeConfig{
			APIKey:      "",
			Model:       "claude-haiku-3-5-20241022",
			MaxTokens:   8192,
			Timeout:     "5m",
			RateLimit:   "1s",
			Temperature: 0.25,
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderGemini,
		},
		Report: ReportConfig{
			OutputDir: "./reports",
			Formats:   []string{"markdown", "html", "pdf"},
		},
		Scheduler: SchedulerConfig{
			Enabled:  false,
			Schedule: "0 6 * * *", // Daily at 06:00
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env -> CLI. Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	// Start with defaults
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier files)
	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	// Apply environment variables (overrides all file configs)
	applyEnvOverrides(config)

	return config, nil
}

// Validate checks the configuration against struct-level constraints
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Environment configuration (highest priority: AUSPEX_ENV, fallback: GO_ENV)
	if env := os.Getenv("AUSPEX_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Storage configuration
	if badgerPath := os.Getenv("AUSPEX_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("AUSPEX_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("AUSPEX_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("AUSPEX_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// ENTSO-E configuration
	if token := os.Getenv("ENTSOE_SECURITY_TOKEN"); token != "" {
		config.Entsoe.APIToken = token
	}
	if token := os.Getenv("AUSPEX_ENTSOE_API_TOKEN"); token != "" {
		config.Entsoe.APIToken = token // AUSPEX_ prefix takes priority
	}
	if baseURL := os.Getenv("AUSPEX_ENTSOE_BASE_URL"); baseURL != "" {
		config.Entsoe.BaseURL = baseURL
	}
	if rateLimit := os.Getenv("AUSPEX_ENTSOE_RATE_LIMIT"); rateLimit != "" {
		if rl, err := strconv.Atoi(rateLimit); err == nil {
			config.Entsoe.RateLimit = rl
		}
	}
	if timeout := os.Getenv("AUSPEX_ENTSOE_REQUEST_TIMEOUT"); timeout != "" {
		if rt, err := time.ParseDuration(timeout); err == nil {
			config.Entsoe.RequestTimeout = rt
		}
	}

	// Run configuration
	if inDomain := os.Getenv("AUSPEX_RUN_IN_DOMAIN"); inDomain != "" {
		config.Run.InDomain = inDomain
	}
	if outDomain := os.Getenv("AUSPEX_RUN_OUT_DOMAIN"); outDomain != "" {
		config.Run.OutDomain = outDomain
	}
	if days := os.Getenv("AUSPEX_RUN_DAYS"); days != "" {
		if d, err := strconv.Atoi(days); err == nil {
			config.Run.Days = d
		}
	}
	if resolution := os.Getenv("AUSPEX_RUN_RESOLUTION"); resolution != "" {
		config.Run.Resolution = resolution
	}

	// Grounding configuration
	if model := os.Getenv("AUSPEX_GROUNDING_MODEL"); model != "" {
		config.Grounding.Model = model
	}
	if tolerance := os.Getenv("AUSPEX_GROUNDING_TOLERANCE"); tolerance != "" {
		if tol, err := strconv.ParseFloat(tolerance, 64); err == nil {
			config.Grounding.Tolerance = tol
		}
	}

	// Gemini configuration
	if apiKey := os.Getenv("AUSPEX_GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if model := os.Getenv("AUSPEX_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}

	// Claude configuration
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv("AUSPEX_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey // AUSPEX_ prefix takes priority
	}
	if model := os.Getenv("AUSPEX_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}

	// LLM provider configuration
	if provider := os.Getenv("AUSPEX_LLM_DEFAULT_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(provider)
	}

	// Report configuration
	if outputDir := os.Getenv("AUSPEX_REPORT_OUTPUT_DIR"); outputDir != "" {
		config.Report.OutputDir = outputDir
	}

	// Scheduler configuration
	if enabled := os.Getenv("AUSPEX_SCHEDULER_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Scheduler.Enabled = e
		}
	}
	if schedule := os.Getenv("AUSPEX_SCHEDULER_SCHEDULE"); schedule != "" {
		config.Scheduler.Schedule = schedule
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, inDomain, outDomain string, days int) {
	// Command-line flags have highest priority
	if inDomain != "" {
		config.Run.InDomain = inDomain
	}
	if outDomain != "" {
		config.Run.OutDomain = outDomain
	}
	if days > 0 {
		config.Run.Days = days
	}
}

// ResolveAPIKey resolves an API key by name with environment variable priority.
// Resolution order: environment variables -> config fallback -> error.
func ResolveAPIKey(name string, configFallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"gemini_api_key":    {"AUSPEX_GEMINI_API_KEY"},
		"anthropic_api_key": {"AUSPEX_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
		"entsoe_api_token":  {"AUSPEX_ENTSOE_API_TOKEN", "ENTSOE_SECURITY_TOKEN"},
	}

	if envVarNames, ok := keyToEnvMapping[name]; ok {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment or config", name)
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// StepsPerDay returns the number of observations per day for the configured resolution
func (r *RunConfig) StepsPerDay() int {
	if r.Resolution == "PT60M" {
		return 24
	}
	return 96
}
