package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds everything the resolver binary reads from the environment.
// Confidence thresholds are empirically tuned values, so they stay tunable
// without a rebuild.
type Config struct {
	Port     int    `envconfig:"RESOLVER_PORT" default:"8460"`
	APIToken string `envconfig:"RESOLVER_API_TOKEN"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	RedisURL    string `envconfig:"REDIS_URL"`
	NatsURL     string `envconfig:"NATS_URL"`
	NatsToken   string `envconfig:"NATS_TOKEN"`

	// LLM provider (classification, synthesis, vision).
	LLMAPIKey  string `envconfig:"LLM_API_KEY" required:"true"`
	LLMModel   string `envconfig:"LLM_MODEL" default:"claude-sonnet-4-20250514"`
	LLMBaseURL string `envconfig:"LLM_BASE_URL"`

	// Speech-to-text provider.
	TranscribeURL   string `envconfig:"TRANSCRIBE_URL"`
	TranscribeKey   string `envconfig:"TRANSCRIBE_API_KEY"`
	TranscribeModel string `envconfig:"TRANSCRIBE_MODEL" default:"whisper-1"`

	// Audio fingerprint providers. Either may be left unconfigured; the
	// pipeline degrades to transcript-only resolution.
	AudDToken    string `envconfig:"AUDD_API_TOKEN"`
	AudDURL      string `envconfig:"AUDD_URL" default:"https://api.audd.io"`
	ACRCloudHost string `envconfig:"ACRCLOUD_HOST"`
	ACRCloudKey  string `envconfig:"ACRCLOUD_ACCESS_KEY"`

	LyricsURL string        `envconfig:"LYRICS_URL" default:"https://api.lyrics.ovh"`
	LyricsTTL time.Duration `envconfig:"LYRICS_CACHE_TTL" default:"24h"`

	BlobStoreURL   string `envconfig:"BLOB_STORE_URL"`
	BlobStoreToken string `envconfig:"BLOB_STORE_TOKEN"`

	// Rate limiting, per caller.
	RatePerMinute  int `envconfig:"RATE_PER_MINUTE" default:"10"`
	RatePerHour    int `envconfig:"RATE_PER_HOUR" default:"100"`
	RateConcurrent int `envconfig:"RATE_CONCURRENT" default:"3"`

	// Circuit breakers, one instance per external dependency.
	BreakerThreshold int           `envconfig:"BREAKER_THRESHOLD" default:"5"`
	BreakerCooldown  time.Duration `envconfig:"BREAKER_COOLDOWN" default:"60s"`

	// Resolution thresholds.
	TerminalConfidence float64 `envconfig:"TERMINAL_CONFIDENCE" default:"0.7"`
	FollowUpThreshold  float64 `envconfig:"FOLLOWUP_THRESHOLD" default:"0.7"`
	RejectedThreshold  float64 `envconfig:"REJECTED_THRESHOLD" default:"0.6"`
	SubstituteMin      float64 `envconfig:"SUBSTITUTE_MIN_CONFIDENCE" default:"0.8"`
	SubstituteMargin   float64 `envconfig:"SUBSTITUTE_MARGIN" default:"0.1"`
	FullSongBytes      int     `envconfig:"FULL_SONG_BYTES" default:"51200"`
}

// Load reads configuration from the environment. envconfig's required check
// only fires on absent variables, so present-but-empty values are rejected
// here.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must not be empty")
	}
	if cfg.LLMAPIKey == "" {
		return Config{}, fmt.Errorf("LLM_API_KEY must not be empty")
	}
	return cfg, nil
}
