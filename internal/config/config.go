package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/hochfrequenz/docai-batch/internal/domain"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Extraction    ExtractionConfig    `toml:"extraction"`
	Ordering      OrderingConfig      `toml:"ordering"`
	Storage       StorageConfig       `toml:"storage"`
	Notifications NotificationsConfig `toml:"notifications"`
	Web           WebConfig           `toml:"web"`
	Logging       LoggingConfig       `toml:"logging"`
}

// GeneralConfig holds batch defaults
type GeneralConfig struct {
	InputDir     string   `toml:"input_dir"`
	OutputDir    string   `toml:"output_dir"`
	ReportsDir   string   `toml:"reports_dir"`
	Workers      int      `toml:"workers"`
	TaskTimeout  Duration `toml:"task_timeout"`
	ScheduleFile string   `toml:"schedule_file"`
}

// ExtractionConfig selects and configures the extraction backend
type ExtractionConfig struct {
	Backend         string `toml:"backend"` // documentai, gemini, docconv, simulated
	ProjectID       string `toml:"project_id"`
	Location        string `toml:"location"`
	ProcessorID     string `toml:"processor_id"`
	CredentialsFile string `toml:"credentials_file"`
	GeminiAPIKey    string `toml:"gemini_api_key"`
	GeminiModel     string `toml:"gemini_model"`
	CacheEnabled    bool   `toml:"cache_enabled"`
	CachePath       string `toml:"cache_path"`
}

// OrderingConfig locates the report ordering files
type OrderingConfig struct {
	File             string `toml:"file"`
	DescriptionsFile string `toml:"descriptions_file"`
}

// StorageConfig holds history database and object storage settings
type StorageConfig struct {
	DatabasePath string `toml:"database_path"`
	DatabaseURL  string `toml:"database_url"`
	S3Region     string `toml:"s3_region"`
	S3AccessKey  string `toml:"s3_access_key"`
	S3SecretKey  string `toml:"s3_secret_key"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// WebConfig holds API server settings
type WebConfig struct {
	Port           int      `toml:"port"`
	Host           string   `toml:"host"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// Duration is a time.Duration that reads from TOML strings like "90s"
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			InputDir:     "inputs",
			OutputDir:    "outputs",
			ReportsDir:   "reports",
			Workers:      5,
			TaskTimeout:  Duration{60 * time.Second},
			ScheduleFile: filepath.Join(home, ".docai-batch", "schedule.toml"),
		},
		Extraction: ExtractionConfig{
			Backend:     "documentai",
			Location:    "us",
			GeminiModel: "gemini-1.5-flash",
			CachePath:   filepath.Join(home, ".docai-batch", "cache.db"),
		},
		Ordering: OrderingConfig{
			File: "order_config.txt",
		},
		Storage: StorageConfig{
			DatabasePath: filepath.Join(home, ".docai-batch", "history.db"),
			S3Region:     "us-east-2",
		},
		Notifications: NotificationsConfig{
			Desktop: false,
		},
		Web: WebConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults.
// Environment variables override values from the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.General.InputDir = ExpandPath(cfg.General.InputDir)
	cfg.General.OutputDir = ExpandPath(cfg.General.OutputDir)
	cfg.General.ReportsDir = ExpandPath(cfg.General.ReportsDir)
	cfg.General.ScheduleFile = ExpandPath(cfg.General.ScheduleFile)
	cfg.Extraction.CredentialsFile = ExpandPath(cfg.Extraction.CredentialsFile)
	cfg.Extraction.CachePath = ExpandPath(cfg.Extraction.CachePath)
	cfg.Ordering.File = ExpandPath(cfg.Ordering.File)
	cfg.Ordering.DescriptionsFile = ExpandPath(cfg.Ordering.DescriptionsFile)
	cfg.Storage.DatabasePath = ExpandPath(cfg.Storage.DatabasePath)

	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE files into the process environment.
// Missing files are skipped; variables already set are not overwritten.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Extraction.ProjectID = getEnv("PROJECT_ID", c.Extraction.ProjectID)
	c.Extraction.Location = getEnv("LOCATION", c.Extraction.Location)
	c.Extraction.ProcessorID = getEnv("PROCESSOR_ID", c.Extraction.ProcessorID)
	c.Extraction.CredentialsFile = getEnv("GOOGLE_APPLICATION_CREDENTIALS", c.Extraction.CredentialsFile)
	c.Extraction.GeminiAPIKey = getEnv("GEMINI_API_KEY", c.Extraction.GeminiAPIKey)
	c.Storage.S3Region = getEnv("AWS_REGION", c.Storage.S3Region)
	c.Storage.S3AccessKey = getEnv("AWS_ACCESS_KEY", c.Storage.S3AccessKey)
	c.Storage.S3SecretKey = getEnv("AWS_SECRET_KEY", c.Storage.S3SecretKey)
	c.Storage.DatabaseURL = getEnv("DATABASE_URL", c.Storage.DatabaseURL)

	if v := getEnv("DOCAI_WORKERS", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return domain.NewConfigurationError("DOCAI_WORKERS=%q is not an integer", v)
		}
		c.General.Workers = n
	}
	return nil
}

// Validate checks settings that would otherwise fail mid-batch
func (c *Config) Validate() error {
	if c.General.Workers < 1 {
		return domain.NewConfigurationError("workers must be at least 1, got %d", c.General.Workers)
	}
	if c.General.TaskTimeout.Duration <= 0 {
		return domain.NewConfigurationError("task_timeout must be positive")
	}
	switch c.Extraction.Backend {
	case "documentai":
		if c.Extraction.ProjectID == "" {
			return domain.NewConfigurationError("extraction.project_id (or PROJECT_ID) is required for the documentai backend")
		}
	case "gemini":
		if c.Extraction.GeminiAPIKey == "" {
			return domain.NewConfigurationError("extraction.gemini_api_key (or GEMINI_API_KEY) is required for the gemini backend")
		}
	case "docconv", "simulated":
	default:
		return domain.NewConfigurationError("unknown extraction backend %q", c.Extraction.Backend)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// LocalConfigName is the per-project config file searched for from the working directory upward
const LocalConfigName = ".docai-batch.toml"

// FindLocalConfig walks up from the working directory looking for LocalConfigName.
// Returns "" if none is found.
func FindLocalConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, LocalConfigName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// LoadWithLocalFallback loads path if given, else the nearest local config, else the user config
func LoadWithLocalFallback(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	if local := FindLocalConfig(); local != "" {
		return Load(local)
	}
	return Load(DefaultConfigPath())
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "docai-batch", "config.toml")
}
