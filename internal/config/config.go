// Package config loads application configuration from file and
// environment and initializes the global logger.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	OCR       OCRConfig       `yaml:"ocr" mapstructure:"ocr"`
	Taxonomy  TaxonomyConfig  `yaml:"taxonomy" mapstructure:"taxonomy"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Chunker   ChunkerConfig   `yaml:"chunker" mapstructure:"chunker"`
	Queue     QueueConfig     `yaml:"queue" mapstructure:"queue"`
	DLQ       DLQConfig       `yaml:"dlq" mapstructure:"dlq"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings for the extract and
// classify stages.
type AnthropicConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	Model     string  `yaml:"model" mapstructure:"model"`
	MaxTokens int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RPS       float64 `yaml:"rps" mapstructure:"rps"`
}

// OCRConfig configures PDF text extraction.
type OCRConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
}

// TaxonomyConfig points at the extraction taxonomy file.
type TaxonomyConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PipelineConfig configures reconciliation behavior.
type PipelineConfig struct {
	AutoApplyThreshold float64 `yaml:"auto_apply_threshold" mapstructure:"auto_apply_threshold"`
	ExtractConcurrency int     `yaml:"extract_concurrency" mapstructure:"extract_concurrency"`
}

// ChunkerConfig configures document chunking for extraction.
type ChunkerConfig struct {
	Window  int `yaml:"window" mapstructure:"window"`
	Overlap int `yaml:"overlap" mapstructure:"overlap"`
}

// StageQueueConfig tunes one stage's worker pool.
type StageQueueConfig struct {
	Concurrency  int `yaml:"concurrency" mapstructure:"concurrency"`
	MaxAttempts  int `yaml:"max_attempts" mapstructure:"max_attempts"`
	BackoffMs    int `yaml:"backoff_ms" mapstructure:"backoff_ms"`
	TimeoutSecs  int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Depth        int `yaml:"depth" mapstructure:"depth"`
}

// QueueConfig holds per-stage worker pool settings.
type QueueConfig struct {
	Intake    StageQueueConfig `yaml:"intake" mapstructure:"intake"`
	OCR       StageQueueConfig `yaml:"ocr" mapstructure:"ocr"`
	Classify  StageQueueConfig `yaml:"classify" mapstructure:"classify"`
	Extract   StageQueueConfig `yaml:"extract" mapstructure:"extract"`
	Reconcile StageQueueConfig `yaml:"reconcile" mapstructure:"reconcile"`
	Actions   StageQueueConfig `yaml:"actions" mapstructure:"actions"`
}

// DLQConfig configures the dead-letter monitor.
type DLQConfig struct {
	MaxEntries int `yaml:"max_entries" mapstructure:"max_entries"`
}

// ServerConfig configures the ops HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Backoff returns the stage's base backoff as a duration.
func (c StageQueueConfig) Backoff() time.Duration {
	return time.Duration(c.BackoffMs) * time.Millisecond
}

// Timeout returns the stage's per-attempt timeout as a duration.
func (c StageQueueConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEGALCOPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "legalcopilot.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.rps", 2.0)
	v.SetDefault("ocr.provider", "native")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("taxonomy.path", "taxonomy.yaml")
	v.SetDefault("pipeline.auto_apply_threshold", 0.85)
	v.SetDefault("pipeline.extract_concurrency", 4)
	v.SetDefault("chunker.window", 2000)
	v.SetDefault("chunker.overlap", 400)
	v.SetDefault("dlq.max_entries", 512)

	stageDefaults := map[string]int{
		"intake":    8,
		"ocr":       4,
		"classify":  2,
		"extract":   2,
		"reconcile": 4,
		"actions":   4,
	}
	for stage, concurrency := range stageDefaults {
		v.SetDefault("queue."+stage+".concurrency", concurrency)
		v.SetDefault("queue."+stage+".max_attempts", 3)
		v.SetDefault("queue."+stage+".backoff_ms", 500)
		v.SetDefault("queue."+stage+".timeout_secs", 120)
		v.SetDefault("queue."+stage+".depth", 256)
	}
	// Extract calls out to the model over many chunks.
	v.SetDefault("queue.extract.timeout_secs", 600)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the configuration required for a run mode ("serve"
// or "ingest") and reports every problem at once.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "ingest":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Anthropic.Key == "" {
		problems = append(problems, "anthropic.key is required (LEGALCOPILOT_ANTHROPIC_KEY)")
	}
	if c.Taxonomy.Path == "" {
		problems = append(problems, "taxonomy.path is required")
	}
	if c.Pipeline.AutoApplyThreshold < 0 || c.Pipeline.AutoApplyThreshold > 1 {
		problems = append(problems, "pipeline.auto_apply_threshold must be between 0 and 1")
	}
	if c.Pipeline.ExtractConcurrency < 1 || c.Pipeline.ExtractConcurrency > 32 {
		problems = append(problems, "pipeline.extract_concurrency must be between 1 and 32")
	}
	if c.Chunker.Window <= 0 {
		problems = append(problems, "chunker.window must be > 0")
	}
	if c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.Window {
		problems = append(problems, "chunker.overlap must be >= 0 and smaller than chunker.window")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
