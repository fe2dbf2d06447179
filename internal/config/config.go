package config

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vango-dev/ripple/internal/errors"
)

const (
	// ConfigFileName is the configuration file looked up by Load.
	ConfigFileName = "ripple.toml"

	// DefaultAddr is the default inspector listen address.
	DefaultAddr = "127.0.0.1:7070"

	// DefaultShutdownTimeout bounds graceful shutdown of the inspector.
	DefaultShutdownTimeout = "5s"

	// DefaultSendBuffer is the per-connection websocket frame buffer.
	DefaultSendBuffer = 16

	// DefaultProjects is the benchmark dataset size.
	DefaultProjects = 1000

	// DefaultSubtasks is the number of subtasks per benchmark project.
	DefaultSubtasks = 5

	// DefaultRounds is the number of times each benchmark scenario runs.
	DefaultRounds = 3

	// DefaultNamespace is the Prometheus metrics namespace.
	DefaultNamespace = "ripple"
)

// Config is the complete ripple configuration.
type Config struct {
	// Serve configures the inspector server.
	Serve ServeConfig `json:"serve" toml:"serve"`

	// Bench configures the benchmark harness.
	Bench BenchConfig `json:"bench" toml:"bench"`

	// Log configures structured logging.
	Log LogConfig `json:"log" toml:"log"`

	// Metrics configures the Prometheus observer.
	Metrics MetricsConfig `json:"metrics" toml:"metrics"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServeConfig contains inspector settings.
type ServeConfig struct {
	// Addr is the listen address.
	Addr string `json:"addr,omitempty" toml:"addr,omitempty"`

	// ShutdownTimeout is a Go duration string (e.g. "5s").
	ShutdownTimeout string `json:"shutdownTimeout,omitempty" toml:"shutdownTimeout,omitempty"`

	// SendBuffer is the number of frames queued per websocket before the
	// connection is dropped as too slow.
	SendBuffer int `json:"sendBuffer,omitempty" toml:"sendBuffer,omitempty"`
}

// BenchConfig contains benchmark harness settings.
type BenchConfig struct {
	Projects int `json:"projects,omitempty" toml:"projects,omitempty"`
	Subtasks int `json:"subtasks,omitempty" toml:"subtasks,omitempty"`
	Rounds   int `json:"rounds,omitempty" toml:"rounds,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level,omitempty" toml:"level,omitempty"`

	// Format is "text" or "json".
	Format string `json:"format,omitempty" toml:"format,omitempty"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" toml:"enabled"`
	Namespace string `json:"namespace,omitempty" toml:"namespace,omitempty"`
}

// New creates a Config with default values.
func New() *Config {
	return &Config{
		Serve: ServeConfig{
			Addr:            DefaultAddr,
			ShutdownTimeout: DefaultShutdownTimeout,
			SendBuffer:      DefaultSendBuffer,
		},
		Bench: BenchConfig{
			Projects: DefaultProjects,
			Subtasks: DefaultSubtasks,
			Rounds:   DefaultRounds,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: DefaultNamespace,
		},
	}
}

// Load reads ripple.toml from dir. A missing file yields the defaults.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return New(), nil
	}
	return LoadFile(path)
}

// LoadFile reads configuration from path. The format is chosen from the
// extension.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("R012").
				WithDetail("No configuration file at " + path).
				WithSuggestion("Run 'ripple config init " + path + "' to write the defaults")
		}
		return nil, errors.New("R010").Wrap(err)
	}

	cfg := New()
	if isTOML(path) {
		err = decodeTOML(path, data, cfg)
	} else {
		err = decodeJSON(path, data, cfg)
	}
	if err != nil {
		return nil, err
	}

	cfg.configPath = path
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func decodeTOML(path string, data []byte, cfg *Config) error {
	if _, err := toml.Decode(string(data), cfg); err != nil {
		re := errors.New("R010").Wrap(err).
			WithSuggestion("Check that " + filepath.Base(path) + " is valid TOML")
		var perr toml.ParseError
		if stderrors.As(err, &perr) {
			re.WithLocation(path, perr.Position.Line, 0)
		}
		return re
	}
	return nil
}

func decodeJSON(path string, data []byte, cfg *Config) error {
	if err := json.Unmarshal(data, cfg); err != nil {
		re := errors.New("R010").Wrap(err).
			WithSuggestion("Check that " + filepath.Base(path) + " is valid JSON")
		var serr *json.SyntaxError
		if stderrors.As(err, &serr) {
			line, col := position(data, serr.Offset)
			re.WithLocation(path, line, col)
		}
		return re
	}
	return nil
}

// position converts a byte offset into a 1-based line and column.
func position(data []byte, offset int64) (line, col int) {
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	before := data[:offset]
	line = bytes.Count(before, []byte{'\n'}) + 1
	col = int(offset) - bytes.LastIndexByte(before, '\n')
	return line, col
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to path in the format implied by its
// extension.
func (c *Config) SaveTo(path string) error {
	var buf bytes.Buffer
	if isTOML(path) {
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return errors.New("R010").Wrap(err)
		}
	} else {
		data, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			return errors.New("R010").Wrap(err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errors.New("R010").Wrap(err)
	}
	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Serve.Addr == "" {
		c.Serve.Addr = DefaultAddr
	}
	if c.Serve.ShutdownTimeout == "" {
		c.Serve.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Serve.SendBuffer == 0 {
		c.Serve.SendBuffer = DefaultSendBuffer
	}

	if c.Bench.Projects == 0 {
		c.Bench.Projects = DefaultProjects
	}
	if c.Bench.Subtasks == 0 {
		c.Bench.Subtasks = DefaultSubtasks
	}
	if c.Bench.Rounds == 0 {
		c.Bench.Rounds = DefaultRounds
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultNamespace
	}
}

// Validate checks that parsed values are usable.
func (c *Config) Validate() error {
	if _, err := c.ShutdownTimeout(); err != nil {
		return c.invalid("serve.shutdownTimeout", err.Error())
	}
	if c.Serve.SendBuffer < 0 {
		return c.invalid("serve.sendBuffer", "must not be negative")
	}
	if c.Bench.Projects < 0 || c.Bench.Subtasks < 0 || c.Bench.Rounds < 0 {
		return c.invalid("bench", "counts must not be negative")
	}
	if _, err := c.LogLevel(); err != nil {
		return c.invalid("log.level", err.Error())
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return c.invalid("log.format", `must be "text" or "json"`)
	}
	return nil
}

func (c *Config) invalid(field, reason string) error {
	re := errors.New("R011").WithDetail(field + ": " + reason)
	if c.configPath != "" {
		re.WithSuggestion("Fix " + field + " in " + c.configPath)
	}
	return re
}

// ShutdownTimeout parses Serve.ShutdownTimeout.
func (c *Config) ShutdownTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Serve.ShutdownTimeout)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", d)
	}
	return d, nil
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, err
	}
	return level, nil
}
