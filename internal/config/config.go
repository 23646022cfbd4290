package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Paths         PathsConfig         `mapstructure:"paths"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Storage       StorageConfig       `mapstructure:"storage"`
	OCR           OCRConfig           `mapstructure:"ocr"`
	VLM           VLMConfig           `mapstructure:"vlm"`
	Transcription TranscriptionConfig `mapstructure:"transcription"`
	Jobs          JobsConfig          `mapstructure:"jobs"`
}

type ServerConfig struct {
	Port        int        `mapstructure:"port"`
	Mode        string     `mapstructure:"mode"`
	MaxUploadMB int64      `mapstructure:"max_upload_mb"`
	CORS        CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

// PathsConfig holds the shared directory roots. Each root gets one
// subdirectory per namespace.
type PathsConfig struct {
	Uploads  string `mapstructure:"uploads"`
	Markdown string `mapstructure:"markdown"`
	Cache    string `mapstructure:"cache"`
	Work     string `mapstructure:"work"` // scratch space for rendered pages
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, memory
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// StorageConfig configures the optional S3-compatible mirror of Markdown outputs.
type StorageConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Type      string `mapstructure:"type"` // r2, s3, s3compatible
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
	PublicURL string `mapstructure:"public_url"`
}

type OCRConfig struct {
	TesseractLanguages []string      `mapstructure:"tesseract_languages"`
	PaddleURL          string        `mapstructure:"paddle_url"` // empty disables the second local engine
	PaddleTimeout      time.Duration `mapstructure:"paddle_timeout"`
	DPI                int           `mapstructure:"dpi"`
	MaxPages           int           `mapstructure:"max_pages"` // 0 means every page
	PdftoppmPath       string        `mapstructure:"pdftoppm_path"`
	PdftotextPath      string        `mapstructure:"pdftotext_path"`
	Enhance            bool          `mapstructure:"enhance"`
	PageWorkers        int           `mapstructure:"page_workers"`
}

type VLMConfig struct {
	Provider   string        `mapstructure:"provider"` // openai, gemini, none
	Model      string        `mapstructure:"model"`
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	MaxTokens  int           `mapstructure:"max_tokens"`
}

type TranscriptionConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Model   string `mapstructure:"model"`
}

type JobsConfig struct {
	Workers       int           `mapstructure:"workers"`
	Retention     time.Duration `mapstructure:"retention"`
	SweepSchedule string        `mapstructure:"sweep_schedule"`
}

// Load reads configuration from configPath (or ./configs/config.yaml, or
// $CONFIG_PATH), then applies environment overrides.
func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}

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
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets and well-known provider variables
	_ = v.BindEnv("vlm.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("vlm.base_url", "OPENAI_BASE_URL")
	_ = v.BindEnv("vlm.model", "OPENAI_LLM_MODEL")
	_ = v.BindEnv("database.dsn", "DATABASE_URL")
	_ = v.BindEnv("storage.endpoint", "S3_ENDPOINT")
	_ = v.BindEnv("storage.access_key", "S3_ACCESS_KEY")
	_ = v.BindEnv("storage.secret_key", "S3_SECRET_KEY")
	_ = v.BindEnv("storage.bucket", "S3_BUCKET")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Gemini uses its own key variable.
	if cfg.VLM.Provider == "gemini" {
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			cfg.VLM.APIKey = key
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.max_upload_mb", 1024)
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("paths.uploads", "./data/uploads")
	v.SetDefault("paths.markdown", "./data/markdown")
	v.SetDefault("paths.cache", "./data/cache")
	v.SetDefault("paths.work", "./data/work")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/jobs.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.bucket", "markdown")
	v.SetDefault("storage.prefix", "markdown")

	v.SetDefault("ocr.tesseract_languages", []string{"chi_sim", "eng"})
	v.SetDefault("ocr.paddle_url", "")
	v.SetDefault("ocr.paddle_timeout", 60*time.Second)
	v.SetDefault("ocr.dpi", 200)
	v.SetDefault("ocr.max_pages", 0)
	v.SetDefault("ocr.pdftoppm_path", "pdftoppm")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.enhance", true)
	v.SetDefault("ocr.page_workers", 1)

	v.SetDefault("vlm.provider", "openai")
	v.SetDefault("vlm.model", "gpt-4o")
	v.SetDefault("vlm.base_url", "https://api.openai.com/v1")
	v.SetDefault("vlm.timeout", 60*time.Second)
	v.SetDefault("vlm.max_retries", 3)
	v.SetDefault("vlm.max_tokens", 4096)

	v.SetDefault("transcription.enabled", false)
	v.SetDefault("transcription.model", "whisper-1")

	v.SetDefault("jobs.workers", 4)
	v.SetDefault("jobs.retention", 72*time.Hour)
	v.SetDefault("jobs.sweep_schedule", "@every 10m")
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.VLM.Provider {
	case "openai", "gemini", "none", "":
	default:
		return fmt.Errorf("unsupported vlm provider %q", c.VLM.Provider)
	}
	if c.Jobs.Workers < 1 {
		return fmt.Errorf("jobs.workers must be at least 1, got %d", c.Jobs.Workers)
	}
	if c.OCR.PageWorkers < 1 {
		c.OCR.PageWorkers = 1
	}
	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required when storage is enabled")
	}
	return nil
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *ServerConfig) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}
