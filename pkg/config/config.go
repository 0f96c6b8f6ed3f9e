package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pario-ai/tierwise/pkg/models"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned by Validate for inconsistent configuration.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all tierwise configuration. It is read once at process start.
type Config struct {
	Listen     string           `yaml:"listen"`
	LogLevel   string           `yaml:"log_level"`
	LogFormat  string           `yaml:"log_format"`
	Tiers      TiersConfig      `yaml:"tiers"`
	Upstream   UpstreamConfig   `yaml:"upstream"`
	Cache      CacheConfig      `yaml:"cache"`
	Compressor CompressorConfig `yaml:"compressor"`
	Router     RouterConfig     `yaml:"router"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Scorer     ScorerConfig     `yaml:"scorer"`
}

// TiersConfig holds the pricing table and fallback chains of both tiers.
type TiersConfig struct {
	Fast    models.ModelTier `yaml:"fast"`
	Capable models.ModelTier `yaml:"capable"`
}

// Get returns the configuration of tier t with its Tier field set.
func (c TiersConfig) Get(t models.Tier) models.ModelTier {
	mt := c.Fast
	if t == models.TierCapable {
		mt = c.Capable
	}
	mt.Tier = t
	return mt
}

// UpstreamConfig selects and configures the upstream LLM endpoint.
// Type is "anthropic" (default) or "openai".
type UpstreamConfig struct {
	Type          string `yaml:"type"`
	APIKey        string `yaml:"api_key"`
	BaseURL       string `yaml:"base_url"`
	MaxTokens     int    `yaml:"max_tokens"`
	PromptCaching bool   `yaml:"prompt_caching"`
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	Enabled              bool      `yaml:"enabled"`
	MaxEntries           int       `yaml:"max_entries"`
	ShortUtteranceRunes  int       `yaml:"short_utterance_runes"`
	PreviousContextRunes int       `yaml:"previous_context_runes"`
	TTL                  TTLConfig `yaml:"ttl"`
}

// TTLConfig maps each content category to its lifetime.
type TTLConfig struct {
	SectorGeneral   time.Duration `yaml:"sector_general"`
	CompanySpecific time.Duration `yaml:"company_specific"`
	RatioAnalysis   time.Duration `yaml:"ratio_analysis"`
	Clarification   time.Duration `yaml:"user_clarification"`
	Synthesis       time.Duration `yaml:"synthesis"`
}

// For returns the TTL of category c.
func (t TTLConfig) For(c models.ContentCategory) time.Duration {
	switch c {
	case models.CategorySectorGeneral:
		return t.SectorGeneral
	case models.CategoryCompanySpecific:
		return t.CompanySpecific
	case models.CategoryRatioAnalysis:
		return t.RatioAnalysis
	case models.CategorySynthesis:
		return t.Synthesis
	default:
		return t.Clarification
	}
}

// CompressorConfig controls history compression.
type CompressorConfig struct {
	TokenBudget      int `yaml:"token_budget"`
	KeepRecent       int `yaml:"keep_recent"`
	MaxSummaryPoints int `yaml:"max_summary_points"`
}

// RouterConfig holds the router's fixed bounds.
type RouterConfig struct {
	EarlyStepMax            int `yaml:"early_step_max"`
	ShortConversationMax    int `yaml:"short_conversation_max"`
	LowComplexityThreshold  int `yaml:"low_complexity_threshold"`
	HighComplexityThreshold int `yaml:"high_complexity_threshold"`
	ExpectedOutputTokens    int `yaml:"expected_output_tokens"`
}

// ClassifierConfig holds the classifier thresholds and an optional rule table.
// An empty Rules list selects the built-in table.
type ClassifierConfig struct {
	TrivialMaxRunes        int                  `yaml:"trivial_max_runes"`
	LongUtteranceRunes     int                  `yaml:"long_utterance_runes"`
	VeryLongUtteranceRunes int                  `yaml:"very_long_utterance_runes"`
	LengthWeight           int                  `yaml:"length_weight"`
	ExtraQuestionWeight    int                  `yaml:"extra_question_weight"`
	CapableThreshold       int                  `yaml:"capable_threshold"`
	Rules                  []models.PatternRule `yaml:"rules"`
}

// LedgerConfig controls the usage ledger. An empty DBPath keeps it in memory only.
type LedgerConfig struct {
	MaxRecords int    `yaml:"max_records"`
	DBPath     string `yaml:"db_path"`
}

// MetricsConfig controls the Prometheus collector.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// ScorerConfig points at the external financial complexity scoring
// service. An empty URL disables it; turns may still carry a score.
type ScorerConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen:    ":8080",
		LogLevel:  "info",
		LogFormat: "json",
		Tiers: TiersConfig{
			Fast: models.ModelTier{
				Model:      "claude-3-5-haiku-20241022",
				InputCost:  0.80,
				OutputCost: 4.00,
				Alternates: []string{"claude-3-5-haiku-latest", "claude-3-haiku-20240307"},
			},
			Capable: models.ModelTier{
				Model:      "claude-sonnet-4-20250514",
				InputCost:  3.00,
				OutputCost: 15.00,
				Alternates: []string{"claude-3-7-sonnet-20250219", "claude-3-5-sonnet-20241022"},
			},
		},
		Upstream: UpstreamConfig{
			Type:      "anthropic",
			MaxTokens: 4096,
		},
		Cache: CacheConfig{
			Enabled:              true,
			MaxEntries:           1000,
			ShortUtteranceRunes:  50,
			PreviousContextRunes: 200,
			TTL: TTLConfig{
				SectorGeneral:   7 * 24 * time.Hour,
				CompanySpecific: 24 * time.Hour,
				RatioAnalysis:   time.Hour,
				Clarification:   10 * time.Minute,
				Synthesis:       4 * time.Hour,
			},
		},
		Compressor: CompressorConfig{
			TokenBudget:      8000,
			KeepRecent:       4,
			MaxSummaryPoints: 10,
		},
		Router: RouterConfig{
			EarlyStepMax:            3,
			ShortConversationMax:    10,
			LowComplexityThreshold:  30,
			HighComplexityThreshold: 70,
			ExpectedOutputTokens:    800,
		},
		Classifier: ClassifierConfig{
			TrivialMaxRunes:        30,
			LongUtteranceRunes:     200,
			VeryLongUtteranceRunes: 500,
			LengthWeight:           10,
			ExtraQuestionWeight:    5,
			CapableThreshold:       50,
		},
		Ledger: LedgerConfig{
			MaxRecords: 10000,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "tierwise",
		},
		Scorer: ScorerConfig{
			Timeout: 5 * time.Second,
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects tables the components cannot work with.
func (c *Config) Validate() error {
	if c.Tiers.Fast.Model == "" || c.Tiers.Capable.Model == "" {
		return fmt.Errorf("%w: both tiers need a model", ErrInvalidConfig)
	}
	if c.Tiers.Fast.InputCost < 0 || c.Tiers.Fast.OutputCost < 0 ||
		c.Tiers.Capable.InputCost < 0 || c.Tiers.Capable.OutputCost < 0 {
		return fmt.Errorf("%w: tier prices must not be negative", ErrInvalidConfig)
	}
	switch c.Upstream.Type {
	case "", "anthropic", "openai":
	default:
		return fmt.Errorf("%w: unknown upstream type %q", ErrInvalidConfig, c.Upstream.Type)
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("%w: cache.max_entries must be positive", ErrInvalidConfig)
	}
	for _, cat := range models.AllCategories {
		if c.Cache.TTL.For(cat) <= 0 {
			return fmt.Errorf("%w: cache ttl for %s must be positive", ErrInvalidConfig, cat)
		}
	}
	if c.Compressor.TokenBudget <= 0 || c.Compressor.KeepRecent < 0 {
		return fmt.Errorf("%w: compressor budget must be positive", ErrInvalidConfig)
	}
	if c.Ledger.MaxRecords <= 0 {
		return fmt.Errorf("%w: ledger.max_records must be positive", ErrInvalidConfig)
	}
	if c.Scorer.URL != "" && c.Scorer.Timeout <= 0 {
		return fmt.Errorf("%w: scorer.timeout must be positive", ErrInvalidConfig)
	}
	for _, r := range c.Classifier.Rules {
		if r.Name == "" || len(r.Patterns) == 0 {
			return fmt.Errorf("%w: classifier rules need a name and patterns", ErrInvalidConfig)
		}
	}
	return nil
}
