// Package batch runs document batches on cron schedules.
package batch

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/hochfrequenz/docai-batch/internal/config"
)

// BatchConfig represents a scheduled batch configuration
type BatchConfig struct {
	Name             string          `toml:"name"`
	Cron             string          `toml:"cron"`
	Input            string          `toml:"input"` // folder or s3://bucket/prefix
	Output           string          `toml:"output"`
	Workers          int             `toml:"workers"`
	MaxDuration      config.Duration `toml:"max_duration"`
	NotifyOnComplete bool            `toml:"notify_on_complete"`
}

// ScheduleConfig holds all batch configurations
type ScheduleConfig struct {
	Batches []BatchConfig `toml:"batch"`
}

// Validate checks if the config is valid and fills defaults
func (c *BatchConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("batch name is required")
	}
	if c.Cron == "" {
		return fmt.Errorf("cron expression is required")
	}
	if _, err := ParseCron(c.Cron); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	if c.Input == "" {
		return fmt.Errorf("batch %s: input is required", c.Name)
	}
	if c.Workers < 0 {
		return fmt.Errorf("batch %s: workers must not be negative", c.Name)
	}
	if c.Workers == 0 {
		c.Workers = 5 // Default
	}
	if c.MaxDuration.Duration <= 0 {
		c.MaxDuration.Duration = 4 * time.Hour // Default
	}
	c.Input = config.ExpandPath(c.Input)
	c.Output = config.ExpandPath(c.Output)
	return nil
}

// LoadScheduleConfig loads batch configuration from a TOML file
func LoadScheduleConfig(path string) (*ScheduleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ScheduleConfig{}, nil
		}
		return nil, err
	}

	var cfg ScheduleConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Validate all batches
	seen := make(map[string]bool)
	for i := range cfg.Batches {
		if err := cfg.Batches[i].Validate(); err != nil {
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
		if seen[cfg.Batches[i].Name] {
			return nil, fmt.Errorf("batch %d: duplicate name %q", i, cfg.Batches[i].Name)
		}
		seen[cfg.Batches[i].Name] = true
	}

	return &cfg, nil
}
