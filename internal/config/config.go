package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"digestbot/pkg/logger"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const DefaultPath = "configs/config.yaml"

const (
	BackendGemini = "gemini"
	BackendOpenAI = "openai"
)

type Config struct {
	Telegram struct {
		Token       string        `yaml:"token" env:"TELEGRAM_BOT_TOKEN" env-required:"true"`
		PollTimeout time.Duration `yaml:"poll_timeout" env:"TELEGRAM_POLL_TIMEOUT" env-default:"10s"`
	} `yaml:"telegram"`

	AI struct {
		Backend         string        `yaml:"backend" env:"AI_BACKEND" env-default:"gemini"`
		GeminiAPIKey    string        `yaml:"gemini_api_key" env:"GEMINI_API_KEY"`
		OpenAIAPIKey    string        `yaml:"openai_api_key" env:"OPENAI_API_KEY"`
		Model           string        `yaml:"model" env:"AI_MODEL" env-default:"gemini-2.0-flash"`
		Timeout         time.Duration `yaml:"timeout" env:"AI_TIMEOUT" env-default:"90s"`
		MaxAttempts     int           `yaml:"max_attempts" env:"AI_MAX_ATTEMPTS" env-default:"2"`
		BreakerFailures uint32        `yaml:"breaker_failures" env:"AI_BREAKER_FAILURES" env-default:"5"`
		BreakerCooldown time.Duration `yaml:"breaker_cooldown" env:"AI_BREAKER_COOLDOWN" env-default:"30s"`
	} `yaml:"ai"`

	Audit struct {
		ChannelID    string        `yaml:"channel_id" env:"LOG_CHANNEL_ID" env-required:"true"`
		Rate         int           `yaml:"rate" env:"AUDIT_RATE" env-default:"20"`
		RateInterval time.Duration `yaml:"rate_interval" env:"AUDIT_RATE_INTERVAL" env-default:"3s"`
	} `yaml:"audit"`

	Convert struct {
		FFmpegPath    string        `yaml:"ffmpeg_path" env:"FFMPEG_PATH" env-default:"ffmpeg"`
		Target        string        `yaml:"target" env:"CONVERT_TARGET" env-default:"mp3"`
		SessionTTL    time.Duration `yaml:"session_ttl" env:"SESSION_TTL" env-default:"10m"`
		SweepInterval time.Duration `yaml:"sweep_interval" env:"SESSION_SWEEP_INTERVAL" env-default:"30s"`
	} `yaml:"convert"`

	Media struct {
		TmpDir         string        `yaml:"tmp_dir" env:"TMP_DIR" env-default:"tmp"`
		MaxFileSizeMB  int           `yaml:"max_file_size_mb" env:"MAX_FILE_SIZE_MB" env-default:"20"`
		RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT" env-default:"5m"`
	} `yaml:"media"`

	Debug bool `yaml:"debug" env:"DEBUG" env-default:"false"`
}

// LoadConfig reads the yaml file at path when it exists and then applies
// environment variables on top of it.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Info("Config loaded successfully")
	return &cfg, nil
}

// Validate checks the values cleanenv cannot express with tags
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN is required"))
	}
	if strings.TrimSpace(c.Audit.ChannelID) == "" {
		errs = append(errs, errors.New("LOG_CHANNEL_ID is required"))
	}

	switch c.AI.Backend {
	case BackendGemini:
		if c.AI.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required for the gemini backend"))
		}
	case BackendOpenAI:
		if c.AI.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for the openai backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown AI_BACKEND %q", c.AI.Backend))
	}

	if c.AI.MaxAttempts < 1 {
		errs = append(errs, errors.New("AI_MAX_ATTEMPTS must be at least 1"))
	}
	if c.Audit.Rate < 1 || c.Audit.RateInterval <= 0 {
		errs = append(errs, errors.New("AUDIT_RATE and AUDIT_RATE_INTERVAL must be positive"))
	}
	if c.Convert.SessionTTL <= 0 || c.Convert.SweepInterval <= 0 {
		errs = append(errs, errors.New("SESSION_TTL and SESSION_SWEEP_INTERVAL must be positive"))
	}
	if c.Media.MaxFileSizeMB < 1 {
		errs = append(errs, errors.New("MAX_FILE_SIZE_MB must be at least 1"))
	}

	return errors.Join(errs...)
}

// MaxFileSize returns the attachment size limit in bytes
func (c *Config) MaxFileSize() int64 {
	return int64(c.Media.MaxFileSizeMB) << 20
}
