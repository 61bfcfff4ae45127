package permabox

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/permabox/permabox/internal/ingest"
)

// Config configures the gateway instance. Only Paths[0] is used at the
// moment; future versions may use multiple paths for sharding or tiering.
type Config struct {
	// Paths contains data directories. Currently only Paths[0] is used.
	Paths []string `yaml:"paths"`
	// MinimumFreeGB is a free-space threshold for on-disk operations.
	MinimumFreeGB int `yaml:"minimumFreeGB"`
	// ListenAddr is the HTTP listen address used by Run.
	ListenAddr string `yaml:"listenAddr"`
	// MaxBundleDepth bounds recursive container expansion.
	MaxBundleDepth int `yaml:"maxBundleDepth"`
	// Logger is an optional structured logger. If nil, a stderr logger is used.
	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) applyDefaults() {
	if c.MinimumFreeGB == 0 {
		c.MinimumFreeGB = 1
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":1984"
	}
	if c.MaxBundleDepth == 0 {
		c.MaxBundleDepth = ingest.DefaultMaxBundleDepth
	}
	if c.Logger == nil {
		c.Logger = defaultLogger()
	}
}

func defaultLogger() *slog.Logger {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(h)
}

// LoadConfig reads a YAML config file. Missing values fall back to defaults
// when the gateway starts.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return config, nil
}
