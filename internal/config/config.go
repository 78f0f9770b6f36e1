package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir   string `toml:"data_dir"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
}

// Declarations contains configuration for the external declarations database.
type Declarations struct {
	DSN               string `toml:"dsn"`
	QueryTimeout      int    `toml:"query_timeout"`
	MaxRetries        int    `toml:"max_retries"`
	RetryBackoffMilli int    `toml:"retry_backoff_ms"`
}

// Portal contains configuration for the customs portal used for barcode
// retrieval and primary status queries.
type Portal struct {
	BaseURL        string `toml:"base_url"`
	RequestTimeout int    `toml:"request_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// Filter contains the eligibility rule set. Values are config-backed so portal
// wording changes do not require a rebuild.
type Filter struct {
	ClearedStatus      string   `toml:"cleared_status"`
	OtherTransportCode string   `toml:"other_transport_code"`
	ManagementPrefixes []string `toml:"management_prefixes"`
}

// Status contains clearance-status classification settings.
type Status struct {
	ClearedKeywords           []string `toml:"cleared_keywords"`
	TransferKeywords          []string `toml:"transfer_keywords"`
	BarcodeImagesImplyCleared bool     `toml:"barcode_images_imply_cleared"`
}

// Scheduler contains automatic-mode timing configuration.
type Scheduler struct {
	Mode            string `toml:"mode"`
	IntervalMinutes int    `toml:"interval_minutes"`
	DaysBack        int    `toml:"days_back"`
}

// Tracking contains clearance-monitor timing and retention configuration.
type Tracking struct {
	CheckIntervalMinutes int `toml:"check_interval_minutes"`
	RetentionDays        int `toml:"retention_days"`
}

// Notifications contains ntfy push notification settings.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for clearwatch.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Declarations  Declarations  `toml:"declarations"`
	Portal        Portal        `toml:"portal"`
	Filter        Filter        `toml:"filter"`
	Status        Status        `toml:"status"`
	Scheduler     Scheduler     `toml:"scheduler"`
	Tracking      Tracking      `toml:"tracking"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/clearwatch/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The boolean reports
// whether a config file actually existed at the resolved path.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("clearwatch.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}

	c.Scheduler.Mode = strings.ToLower(strings.TrimSpace(c.Scheduler.Mode))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Portal.BaseURL = strings.TrimRight(strings.TrimSpace(c.Portal.BaseURL), "/")
	return nil
}

// Validate checks configuration values for consistency.
func (c *Config) Validate() error {
	var problems []string

	switch c.Scheduler.Mode {
	case "automatic", "manual":
	default:
		problems = append(problems, fmt.Sprintf("scheduler.mode must be automatic or manual, got %q", c.Scheduler.Mode))
	}
	if c.Scheduler.IntervalMinutes <= 0 {
		problems = append(problems, "scheduler.interval_minutes must be positive")
	}
	if c.Scheduler.DaysBack <= 0 {
		problems = append(problems, "scheduler.days_back must be positive")
	}
	if c.Tracking.CheckIntervalMinutes <= 0 {
		problems = append(problems, "tracking.check_interval_minutes must be positive")
	}
	if c.Tracking.RetentionDays < 0 {
		problems = append(problems, "tracking.retention_days must not be negative")
	}
	if c.Filter.ClearedStatus == "" {
		problems = append(problems, "filter.cleared_status must not be empty")
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format must be console or json, got %q", c.Logging.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.OutputDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the local tracking database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "clearwatch.db")
}

// AutomaticMode reports whether the scheduler should run on its own timer.
func (c *Config) AutomaticMode() bool {
	return c.Scheduler.Mode == "automatic"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
