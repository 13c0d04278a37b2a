package ordering

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/hochfrequenz/docai-batch/internal/logging"
)

// Config is the ordered list of name prefixes that decide report order.
// An empty Config means purely alphabetical order.
type Config struct {
	Priority []string
}

// OrderingError reports an ordering config that could not be read
type OrderingError struct {
	Path string
	Err  error
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("ordering config %s: %v", e.Path, e.Err)
}

func (e *OrderingError) Unwrap() error { return e.Err }

// Parse reads one entry per line. Blank lines and lines starting with '#' are skipped.
func Parse(r io.Reader) (Config, error) {
	var cfg Config
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cfg.Priority = append(cfg.Priority, line)
	}
	if err := scanner.Err(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads the ordering config at path
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, &OrderingError{Path: path, Err: err}
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return Config{}, &OrderingError{Path: path, Err: err}
	}
	return cfg, nil
}

// LoadOrDefault reads the config at path and falls back to alphabetical order when it is missing or unreadable
func LoadOrDefault(path string, logger *zap.Logger) Config {
	logger = logging.OrNop(logger)
	if path == "" {
		return Config{}
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("order config not found, using alphabetical order", zap.String("path", path))
		} else {
			logger.Warn("order config unreadable, using alphabetical order", zap.String("path", path), zap.Error(err))
		}
		return Config{}
	}
	logger.Info("loaded order configuration", zap.String("path", path), zap.Int("entries", len(cfg.Priority)))
	return cfg
}
