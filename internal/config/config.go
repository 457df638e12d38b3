package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Signing   SigningConfig   `mapstructure:"signing"`
	OCR       OCRConfig       `mapstructure:"ocr"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Thumbnail ThumbnailConfig `mapstructure:"thumbnail"`
	Query     QueryConfig     `mapstructure:"query"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	// PublicURL is the externally reachable base of the asset endpoint.
	PublicURL string     `mapstructure:"public_url"`
	CORS      CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
	return c.Path + "?_busy_timeout=5000"
}

type StorageConfig struct {
	Type          string   `mapstructure:"type"` // local, s3
	MemesDir      string   `mapstructure:"memes_dir"`
	ThumbnailsDir string   `mapstructure:"thumbnails_dir"`
	S3            S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Type      string `mapstructure:"type"` // r2, s3, s3compatible
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
}

type SigningConfig struct {
	Secret         string        `mapstructure:"secret"`
	URLTTL         time.Duration `mapstructure:"url_ttl"`
	ConfirmTTL     time.Duration `mapstructure:"confirm_ttl"`
	MinSecretBytes int           `mapstructure:"min_secret_bytes"`
}

type OCRConfig struct {
	Provider     string        `mapstructure:"provider"` // vlm, tesseract
	Model        string        `mapstructure:"model"`
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Languages    string        `mapstructure:"languages"`
	TesseractBin string        `mapstructure:"tesseract_bin"`
	Attempts     int           `mapstructure:"attempts"`
	Backoff      time.Duration `mapstructure:"backoff"`
}

type IngestConfig struct {
	Workers int `mapstructure:"workers"`
}

type ThumbnailConfig struct {
	MaxWidth  int `mapstructure:"max_width"`
	MaxHeight int `mapstructure:"max_height"`
	Quality   int `mapstructure:"quality"`
}

type QueryConfig struct {
	MaxResults int `mapstructure:"max_results"`
	MaxLength  int `mapstructure:"max_length"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
	// AllowedUserIDs is the fixed set of authorized callers.
	AllowedUserIDs []int64 `mapstructure:"allowed_user_ids"`
	PollTimeout    int     `mapstructure:"poll_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("telegram.token", "TELEGRAM_TOKEN")
	v.BindEnv("signing.secret", "SIGNING_SECRET")
	v.BindEnv("server.public_url", "PUBLIC_URL")
	v.BindEnv("ocr.api_key", "OPENAI_API_KEY")
	v.BindEnv("ocr.base_url", "OPENAI_BASE_URL")
	v.BindEnv("ocr.model", "OCR_MODEL")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("storage.s3.access_key", "S3_ACCESS_KEY")
	v.BindEnv("storage.s3.secret_key", "S3_SECRET_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// ALLOWED_TELEGRAM_IDS is a comma-separated list, which viper does not split into int64s.
	if raw := v.GetString("ALLOWED_TELEGRAM_IDS"); raw != "" {
		ids, err := ParseUserIDs(raw)
		if err != nil {
			return nil, err
		}
		cfg.Telegram.AllowedUserIDs = ids
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.public_url", "http://localhost:8080")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/db/memes.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.memes_dir", "./data/memes")
	v.SetDefault("storage.thumbnails_dir", "./data/thumbnails")
	v.SetDefault("storage.s3.use_ssl", true)
	v.SetDefault("storage.s3.bucket", "memes")
	v.SetDefault("signing.url_ttl", 24*time.Hour)
	v.SetDefault("signing.confirm_ttl", 5*time.Minute)
	v.SetDefault("signing.min_secret_bytes", 32)
	v.SetDefault("ocr.provider", "tesseract")
	v.SetDefault("ocr.model", "gpt-4o-mini")
	v.SetDefault("ocr.base_url", "https://api.openai.com/v1")
	v.SetDefault("ocr.timeout", 60*time.Second)
	v.SetDefault("ocr.languages", "eng+rus")
	v.SetDefault("ocr.tesseract_bin", "tesseract")
	v.SetDefault("ocr.attempts", 3)
	v.SetDefault("ocr.backoff", 500*time.Millisecond)
	v.SetDefault("ingest.workers", 4)
	v.SetDefault("thumbnail.max_width", 320)
	v.SetDefault("thumbnail.max_height", 240)
	v.SetDefault("thumbnail.quality", 85)
	v.SetDefault("query.max_results", 50)
	v.SetDefault("query.max_length", 256)
	v.SetDefault("telegram.poll_timeout", 60)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks the values the bot cannot run without.
func (c *Config) Validate() error {
	if c.Signing.Secret == "" {
		return fmt.Errorf("signing.secret is required (set SIGNING_SECRET)")
	}
	if len(c.Signing.Secret) < c.Signing.MinSecretBytes {
		return fmt.Errorf("signing.secret must be at least %d bytes", c.Signing.MinSecretBytes)
	}
	if c.Signing.URLTTL <= 0 {
		return fmt.Errorf("signing.url_ttl must be positive")
	}
	if c.Server.PublicURL == "" {
		return fmt.Errorf("server.public_url is required (set PUBLIC_URL)")
	}
	switch c.Storage.Type {
	case "local", "s3":
	default:
		return fmt.Errorf("unknown storage.type %q", c.Storage.Type)
	}
	switch c.OCR.Provider {
	case "tesseract":
	case "vlm":
		if c.OCR.APIKey == "" {
			return fmt.Errorf("ocr.api_key is required for the vlm provider (set OPENAI_API_KEY)")
		}
	default:
		return fmt.Errorf("unknown ocr.provider %q", c.OCR.Provider)
	}
	if c.OCR.Attempts < 1 {
		return fmt.Errorf("ocr.attempts must be at least 1")
	}
	return nil
}

// ParseUserIDs splits a comma-separated list of numeric Telegram user ids.
func ParseUserIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid telegram user id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
