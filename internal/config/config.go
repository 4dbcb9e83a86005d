// README: Config loader: defaults, optional YAML file, then environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type ParserConfig struct {
	DeterministicThreshold float64       `yaml:"deterministic_threshold"`
	AIThreshold            float64       `yaml:"ai_threshold"`
	MaxProcessingTime      time.Duration `yaml:"max_processing_time"`
	EnableAIFallback       bool          `yaml:"enable_ai_fallback"`
}

type AIConfig struct {
	GeminiKey      string  `yaml:"gemini_key"`
	Model          string  `yaml:"model"`
	RPS            float64 `yaml:"rps"`
	Burst          int     `yaml:"burst"`
	TokensPerMonth int     `yaml:"tokens_per_month"`
}

type SessionConfig struct {
	TTL      time.Duration `yaml:"ttl"`
	Capacity int           `yaml:"capacity"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

type ModifyConfig struct {
	MaxDestinations int `yaml:"max_destinations"`
	MaxOps          int `yaml:"max_ops"`
}

type Config struct {
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	DB struct {
		DSN string `yaml:"dsn"`
	} `yaml:"db"`
	Redis struct {
		Addr string `yaml:"addr"`
	} `yaml:"redis"`
	Maps struct {
		APIKey string `yaml:"api_key"`
	} `yaml:"maps"`
	Firebase struct {
		ProjectID       string `yaml:"project_id"`
		CredentialsFile string `yaml:"credentials_file"`
	} `yaml:"firebase"`
	Parser   ParserConfig  `yaml:"parser"`
	AI       AIConfig      `yaml:"ai"`
	Session  SessionConfig `yaml:"session"`
	Modify   ModifyConfig  `yaml:"modify"`
	LogLevel string        `yaml:"log_level"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	var cfg Config
	cfg.HTTP.Addr = ":8080"
	cfg.Parser = ParserConfig{DeterministicThreshold: 0.7, AIThreshold: 0.6, MaxProcessingTime: 5 * time.Second, EnableAIFallback: true}
	cfg.AI = AIConfig{Model: "gemini-2.0-flash", RPS: 5, Burst: 10, TokensPerMonth: 100}
	cfg.Session = SessionConfig{TTL: 30 * time.Minute, Capacity: 10000, LockTTL: 10 * time.Second}
	cfg.Modify = ModifyConfig{MaxDestinations: 12, MaxOps: 6}
	cfg.LogLevel = "info"
	return cfg
}

// Load reads WAYFARER_CONFIG_FILE when set, then applies environment variables on top.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("WAYFARER_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.HTTP.Addr = envOrDefault("WAYFARER_HTTP_ADDR", cfg.HTTP.Addr)
	cfg.DB.DSN = envOrDefault("WAYFARER_DB_DSN", cfg.DB.DSN)
	cfg.Redis.Addr = envOrDefault("WAYFARER_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Maps.APIKey = envOrDefault("WAYFARER_MAPS_API_KEY", cfg.Maps.APIKey)
	cfg.Firebase.ProjectID = envOrDefault("WAYFARER_FIREBASE_PROJECT_ID", cfg.Firebase.ProjectID)
	cfg.Firebase.CredentialsFile = envOrDefault("WAYFARER_FIREBASE_CREDENTIALS", cfg.Firebase.CredentialsFile)

	cfg.Parser.DeterministicThreshold = envOrDefaultFloat("WAYFARER_DET_THRESHOLD", cfg.Parser.DeterministicThreshold)
	cfg.Parser.AIThreshold = envOrDefaultFloat("WAYFARER_AI_THRESHOLD", cfg.Parser.AIThreshold)
	cfg.Parser.MaxProcessingTime = time.Duration(envOrDefaultInt("WAYFARER_MAX_PROCESSING_MS", int(cfg.Parser.MaxProcessingTime/time.Millisecond))) * time.Millisecond
	cfg.Parser.EnableAIFallback = envOrDefaultBool("WAYFARER_AI_FALLBACK", cfg.Parser.EnableAIFallback)

	cfg.AI.GeminiKey = envOrDefault("GEMINI_API_KEY", cfg.AI.GeminiKey)
	cfg.AI.Model = envOrDefault("WAYFARER_AI_MODEL", cfg.AI.Model)
	cfg.AI.RPS = envOrDefaultFloat("WAYFARER_AI_RPS", cfg.AI.RPS)
	cfg.AI.Burst = envOrDefaultInt("WAYFARER_AI_BURST", cfg.AI.Burst)
	cfg.AI.TokensPerMonth = envOrDefaultInt("WAYFARER_AI_TOKENS_PER_MONTH", cfg.AI.TokensPerMonth)

	cfg.Session.TTL = envOrDefaultDuration("WAYFARER_SESSION_TTL", cfg.Session.TTL)
	cfg.Session.Capacity = envOrDefaultInt("WAYFARER_SESSION_CAPACITY", cfg.Session.Capacity)
	cfg.Session.LockTTL = envOrDefaultDuration("WAYFARER_SESSION_LOCK_TTL", cfg.Session.LockTTL)

	cfg.Modify.MaxDestinations = envOrDefaultInt("WAYFARER_MAX_DESTINATIONS", cfg.Modify.MaxDestinations)
	cfg.Modify.MaxOps = envOrDefaultInt("WAYFARER_MAX_OPS", cfg.Modify.MaxOps)

	cfg.LogLevel = envOrDefault("WAYFARER_LOG_LEVEL", cfg.LogLevel)
	return cfg, cfg.Validate()
}

// Validate rejects settings the parser cannot work with.
func (c Config) Validate() error {
	for name, v := range map[string]float64{
		"parser.deterministic_threshold": c.Parser.DeterministicThreshold,
		"parser.ai_threshold":            c.Parser.AIThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", name, v)
		}
	}
	if c.Parser.MaxProcessingTime <= 0 {
		return fmt.Errorf("parser.max_processing_time must be positive")
	}
	if c.Session.Capacity <= 0 {
		return fmt.Errorf("session.capacity must be positive")
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
