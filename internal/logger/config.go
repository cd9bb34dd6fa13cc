package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// LogConfig is the string form of the logger configuration, as it comes
// from flags and environment variables.
type LogConfig struct {
	Level      string
	Format     string
	Output     string
	Components map[string]bool
	Timestamp  bool
	Rotation   *RotationConfig
}

// RotationConfig represents log rotation configuration
type RotationConfig struct {
	MaxSize    string // e.g. "10MB", "1GiB"
	MaxAge     string // e.g. "7d", "24h"
	MaxBackups int
	Compress   bool
}

// DefaultLogConfig returns default logging configuration
func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		Level:  "INFO",
		Format: "text",
		Output: "stderr",
		Components: map[string]bool{
			string(ComponentApp):          true,
			string(ComponentOrchestrator): true,
		},
	}
}

// EnvironmentConfig applies YTFETCH_LOG_* variables on top of the defaults.
func EnvironmentConfig() *LogConfig {
	config := DefaultLogConfig()

	if level := os.Getenv("YTFETCH_LOG_LEVEL"); level != "" {
		config.Level = level
	}
	if format := os.Getenv("YTFETCH_LOG_FORMAT"); format != "" {
		config.Format = format
	}
	if timestamp := os.Getenv("YTFETCH_LOG_TIMESTAMP"); timestamp != "" {
		config.Timestamp = timestamp == "true" || timestamp == "1"
	}
	if components := os.Getenv("YTFETCH_LOG_COMPONENTS"); components != "" {
		config.Components = make(map[string]bool)
		for _, comp := range strings.Split(components, ",") {
			comp = strings.TrimSpace(comp)
			if comp != "" {
				config.Components[comp] = true
			}
		}
	}

	return config
}

// ApplyFlags folds the -v and --logfile CLI flags into the configuration.
// Verbose mode logs every component at DEBUG. A log file gets timestamps
// and size based rotation.
func (c *LogConfig) ApplyFlags(verbose bool, logfile string) {
	if verbose {
		c.Level = "DEBUG"
		for _, comp := range AllComponents {
			c.Components[string(comp)] = true
		}
	}
	if logfile != "" {
		c.Output = "file:" + logfile
		c.Timestamp = true
		if c.Rotation == nil {
			c.Rotation = &RotationConfig{MaxSize: "10MB", MaxAge: "7d", MaxBackups: 3, Compress: true}
		}
	}
}

// ToLoggerConfig converts LogConfig to logger.Config
func (c *LogConfig) ToLoggerConfig() (*Config, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("parse level: %w", err)
	}

	format, err := parseFormat(c.Format)
	if err != nil {
		return nil, fmt.Errorf("parse format: %w", err)
	}

	components := make(map[Component]bool)
	for name, enabled := range c.Components {
		components[Component(name)] = enabled
	}

	return &Config{
		Level:      level,
		Format:     format,
		Output:     os.Stderr,
		Components: components,
		Timestamp:  c.Timestamp,
	}, nil
}

func parseLevel(levelStr string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "TRACE":
		return TRACE, nil
	case "DEBUG":
		return DEBUG, nil
	case "INFO", "":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("unknown level: %s", levelStr)
	}
}

func parseFormat(formatStr string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(formatStr)) {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "color", "colored":
		return FormatColor, nil
	default:
		return FormatText, fmt.Errorf("unknown format: %s", formatStr)
	}
}

// openOutput resolves "stdout", "stderr", "null" or "file:PATH".
func openOutput(outputStr string) (io.Writer, error) {
	switch strings.ToLower(outputStr) {
	case "stdout":
		return os.Stdout, nil
	case "stderr", "":
		return os.Stderr, nil
	case "null", "none":
		return io.Discard, nil
	}
	if strings.HasPrefix(outputStr, "file:") {
		filePath := strings.TrimPrefix(outputStr, "file:")
		if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		return file, nil
	}
	return nil, fmt.Errorf("unknown output: %s", outputStr)
}

// Build creates the logger described by the configuration. The returned
// closer releases the log file, if any.
func (c *LogConfig) Build() (*Logger, io.Closer, error) {
	cfg, err := c.ToLoggerConfig()
	if err != nil {
		return nil, nil, err
	}

	var closer io.Closer = io.NopCloser(nil)
	filename, isFile := strings.CutPrefix(c.Output, "file:")
	switch {
	case isFile && c.Rotation != nil:
		maxSize, err := parseSize(c.Rotation.MaxSize)
		if err != nil {
			return nil, nil, fmt.Errorf("parse max size: %w", err)
		}
		maxAge, err := parseDuration(c.Rotation.MaxAge)
		if err != nil {
			return nil, nil, fmt.Errorf("parse max age: %w", err)
		}
		rw, err := NewRotatingWriter(filename, maxSize, maxAge, c.Rotation.MaxBackups, c.Rotation.Compress)
		if err != nil {
			return nil, nil, fmt.Errorf("create rotating writer: %w", err)
		}
		cfg.Output, closer = rw, rw
	default:
		out, err := openOutput(c.Output)
		if err != nil {
			return nil, nil, err
		}
		cfg.Output = out
		if f, ok := out.(*os.File); ok && isFile {
			closer = f
		}
	}

	return New(cfg), closer, nil
}

// parseSize accepts human sizes such as "100MB" or "1GiB".
func parseSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(sizeStr)
	if sizeStr == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(sizeStr)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

// parseDuration extends time.ParseDuration with a "d" (days) unit.
func parseDuration(durationStr string) (time.Duration, error) {
	durationStr = strings.TrimSpace(durationStr)
	if durationStr == "" {
		return 0, nil
	}
	if days, ok := strings.CutSuffix(durationStr, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("parse days: %w", err)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(durationStr)
}
