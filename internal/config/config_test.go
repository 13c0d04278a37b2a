package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hochfrequenz/docai-batch/internal/domain"
)

// clearEnv unsets every override for the duration of the test
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PROJECT_ID", "LOCATION", "PROCESSOR_ID", "GOOGLE_APPLICATION_CREDENTIALS", "GEMINI_API_KEY",
		"AWS_REGION", "AWS_ACCESS_KEY", "AWS_SECRET_KEY", "DATABASE_URL", "DOCAI_WORKERS",
	} {
		t.Setenv(k, "")
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg := Default()

	if cfg.General.Workers != 5 {
		t.Errorf("Workers = %d, want 5", cfg.General.Workers)
	}
	if cfg.General.TaskTimeout.Duration != 60*time.Second {
		t.Errorf("TaskTimeout = %v, want 60s", cfg.General.TaskTimeout)
	}
	if cfg.Extraction.Location != "us" {
		t.Errorf("Location = %q, want us", cfg.Extraction.Location)
	}
	if cfg.Web.Host != "127.0.0.1" {
		t.Errorf("Web.Host = %q, want 127.0.0.1", cfg.Web.Host)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.General.Workers != 5 {
		t.Errorf("Workers = %d, want 5", cfg.General.Workers)
	}
}

func TestLoad_FromFile(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `
[general]
input_dir = "/data/in"
workers = 8
task_timeout = "90s"

[extraction]
backend = "gemini"
gemini_model = "gemini-1.5-pro"

[web]
port = 9000
allowed_origins = ["http://localhost:3000"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.General.InputDir != "/data/in" {
		t.Errorf("InputDir = %q, want /data/in", cfg.General.InputDir)
	}
	if cfg.General.Workers != 8 {
		t.Errorf("Workers = %d, want 8", cfg.General.Workers)
	}
	if cfg.General.TaskTimeout.Duration != 90*time.Second {
		t.Errorf("TaskTimeout = %v, want 90s", cfg.General.TaskTimeout)
	}
	if cfg.Extraction.Backend != "gemini" {
		t.Errorf("Backend = %q, want gemini", cfg.Extraction.Backend)
	}
	if cfg.Web.Port != 9000 {
		t.Errorf("Web.Port = %d, want 9000", cfg.Web.Port)
	}
	if len(cfg.Web.AllowedOrigins) != 1 {
		t.Errorf("AllowedOrigins = %v", cfg.Web.AllowedOrigins)
	}
	// untouched sections keep defaults
	if cfg.Extraction.Location != "us" {
		t.Errorf("Location = %q, want us", cfg.Extraction.Location)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, "[general]\ntask_timeout = \"soon\"\n")
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PROJECT_ID", "my-project")
	t.Setenv("LOCATION", "eu")
	t.Setenv("DOCAI_WORKERS", "3")
	t.Setenv("DATABASE_URL", "postgres://localhost/docai")

	path := writeTempConfig(t, "[extraction]\nproject_id = \"from-file\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Extraction.ProjectID != "my-project" {
		t.Errorf("ProjectID = %q, want my-project", cfg.Extraction.ProjectID)
	}
	if cfg.Extraction.Location != "eu" {
		t.Errorf("Location = %q, want eu", cfg.Extraction.Location)
	}
	if cfg.General.Workers != 3 {
		t.Errorf("Workers = %d, want 3", cfg.General.Workers)
	}
	if cfg.Storage.DatabaseURL != "postgres://localhost/docai" {
		t.Errorf("DatabaseURL = %q", cfg.Storage.DatabaseURL)
	}
}

func TestLoad_BadWorkersEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("DOCAI_WORKERS", "many")
	_, err := Load(filepath.Join(t.TempDir(), "none.toml"))
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("Load() error = %v, want configuration error", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("PROJECT_ID=dotenv-project\n"), 0644); err != nil {
		t.Fatal(err)
	}
	// godotenv never overwrites a variable that is set, even to ""
	os.Unsetenv("PROJECT_ID")

	if err := LoadDotEnv(envFile, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("PROJECT_ID"); got != "dotenv-project" {
		t.Errorf("PROJECT_ID = %q, want dotenv-project", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"documentai with project", func(c *Config) { c.Extraction.ProjectID = "p" }, false},
		{"documentai without project", func(c *Config) {}, true},
		{"zero workers", func(c *Config) { c.Extraction.ProjectID = "p"; c.General.Workers = 0 }, true},
		{"gemini without key", func(c *Config) { c.Extraction.Backend = "gemini" }, true},
		{"docconv", func(c *Config) { c.Extraction.Backend = "docconv" }, false},
		{"unknown backend", func(c *Config) { c.Extraction.Backend = "tesseract" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrConfiguration) {
				t.Errorf("Validate() error %v is not a configuration error", err)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input string
		want  string
	}{
		{"~/test", filepath.Join(home, "test")},
		{"/absolute/path", "/absolute/path"},
		{"relative", "relative"},
	}

	for _, tt := range tests {
		got := ExpandPath(tt.input)
		if got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFindLocalConfig(t *testing.T) {
	root := t.TempDir()
	subdir := filepath.Join(root, "sub", "dir")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatal(err)
	}

	localConfig := filepath.Join(root, LocalConfigName)
	if err := os.WriteFile(localConfig, []byte("[general]\nworkers = 2"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Chdir(subdir)

	found := FindLocalConfig()
	if found != localConfig {
		t.Errorf("FindLocalConfig() = %q, want %q", found, localConfig)
	}
}

func TestLoadWithLocalFallback_ExplicitPath(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, "[general]\nworkers = 7\n")

	cfg, err := LoadWithLocalFallback(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.General.Workers != 7 {
		t.Errorf("Workers = %d, want 7", cfg.General.Workers)
	}
}
