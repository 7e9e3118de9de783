package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Login URLs for the two Salesforce org types.
const (
	ProductionLoginURL = "https://login.salesforce.com"
	SandboxLoginURL    = "https://test.salesforce.com"
)

// Config represents the application configuration
type Config struct {
	Environment string        `toml:"environment"` // "development" or "production"
	Target      TargetConfig  `toml:"target"`
	Batch       BatchConfig   `toml:"batch"`
	Worker      WorkerConfig  `toml:"worker"`
	Storage     StorageConfig `toml:"storage"`
	Server      ServerConfig  `toml:"server"`
	Logging     LoggingConfig `toml:"logging"`
}

// TargetConfig identifies the org the workers drive.
type TargetConfig struct {
	Login    string `toml:"login"`
	Password string `toml:"password"`
	OrgType  string `toml:"org_type" validate:"oneof=production sandbox"` // selects the default login URL
	LoginURL string `toml:"login_url" validate:"omitempty,url"`            // overrides OrgType when set
}

// BatchConfig controls how selections are cut into pools.
type BatchConfig struct {
	Capacity        int  `toml:"capacity" validate:"min=1"` // items per group, i.e. browser bots per worker
	CheckOnly       bool `toml:"check_only"`                // perform every step except the final save
	Trace           bool `toml:"trace"`                     // screenshot every step
	ValidateParents bool `toml:"validate_parents"`          // reject states whose parent country is unknown
}

// WorkerConfig controls the spawned worker processes.
type WorkerConfig struct {
	Binary       string        `toml:"binary"`                          // worker executable; empty = next to the running binary
	Retries      int           `toml:"retries" validate:"min=1"`        // full restarts per item
	StepDuration time.Duration `toml:"step_duration" validate:"gt=0"`   // pause between step attempts
	StepRetries  int           `toml:"step_retries" validate:"min=1"`   // failed attempts before restarting from step 0
	Headless     bool          `toml:"headless"`
	UserAgent    string        `toml:"user_agent"`
	StagingDir   string        `toml:"staging_dir"`                     // empty = os.TempDir()
	DebugDir     string        `toml:"debug_dir" validate:"required"`   // worker logs and screenshots
	StepTimeout  time.Duration `toml:"step_timeout" validate:"gt=0"`    // browser timeout for a single step attempt
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean test runs
}

type ServerConfig struct {
	Enabled  bool          `toml:"enabled"`
	Port     int           `toml:"port" validate:"min=0,max=65535"`
	Host     string        `toml:"host"`
	Throttle time.Duration `toml:"throttle"` // minimum spacing between broadcast progress frames, 0 = none
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=debug info warn error"`
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Target: TargetConfig{
			OrgType: "sandbox",
		},
		Batch: BatchConfig{
			Capacity:        5,
			CheckOnly:       false,
			Trace:           false,
			ValidateParents: true,
		},
		Worker: WorkerConfig{
			Retries:      3,
			StepDuration: 3 * time.Second,
			StepRetries:  10,
			Headless:     true,
			UserAgent:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			DebugDir:     "./debug",
			StepTimeout:  30 * time.Second,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Server: ServerConfig{
			Enabled:  false,
			Port:     8085,
			Host:     "localhost",
			Throttle: 250 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFiles loads configuration with priority: default -> file1 -> file2 -> ... -> env.
// CLI overrides are applied afterwards by the caller.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Later files override earlier files
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("ADDRESSBOT_ENV"); env != "" {
		config.Environment = env
	}

	// Target configuration
	if login := os.Getenv("ADDRESSBOT_TARGET_LOGIN"); login != "" {
		config.Target.Login = login
	}
	if password := os.Getenv("ADDRESSBOT_TARGET_PASSWORD"); password != "" {
		config.Target.Password = password
	}
	if orgType := os.Getenv("ADDRESSBOT_TARGET_ORG_TYPE"); orgType != "" {
		config.Target.OrgType = orgType
	}
	if loginURL := os.Getenv("ADDRESSBOT_TARGET_LOGIN_URL"); loginURL != "" {
		config.Target.LoginURL = loginURL
	}

	// Batch configuration
	if capacity := os.Getenv("ADDRESSBOT_BATCH_CAPACITY"); capacity != "" {
		if c, err := strconv.Atoi(capacity); err == nil {
			config.Batch.Capacity = c
		}
	}
	if checkOnly := os.Getenv("ADDRESSBOT_BATCH_CHECK_ONLY"); checkOnly != "" {
		if co, err := strconv.ParseBool(checkOnly); err == nil {
			config.Batch.CheckOnly = co
		}
	}
	if trace := os.Getenv("ADDRESSBOT_BATCH_TRACE"); trace != "" {
		if t, err := strconv.ParseBool(trace); err == nil {
			config.Batch.Trace = t
		}
	}

	// Worker configuration
	if binary := os.Getenv("ADDRESSBOT_WORKER_BINARY"); binary != "" {
		config.Worker.Binary = binary
	}
	if retries := os.Getenv("ADDRESSBOT_WORKER_RETRIES"); retries != "" {
		if r, err := strconv.Atoi(retries); err == nil {
			config.Worker.Retries = r
		}
	}
	if stepDuration := os.Getenv("ADDRESSBOT_WORKER_STEP_DURATION"); stepDuration != "" {
		if d, err := time.ParseDuration(stepDuration); err == nil {
			config.Worker.StepDuration = d
		}
	}
	if stepRetries := os.Getenv("ADDRESSBOT_WORKER_STEP_RETRIES"); stepRetries != "" {
		if r, err := strconv.Atoi(stepRetries); err == nil {
			config.Worker.StepRetries = r
		}
	}
	if headless := os.Getenv("ADDRESSBOT_WORKER_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Worker.Headless = h
		}
	}
	if stagingDir := os.Getenv("ADDRESSBOT_WORKER_STAGING_DIR"); stagingDir != "" {
		config.Worker.StagingDir = stagingDir
	}
	if debugDir := os.Getenv("ADDRESSBOT_WORKER_DEBUG_DIR"); debugDir != "" {
		config.Worker.DebugDir = debugDir
	}

	// Storage configuration
	if badgerPath := os.Getenv("ADDRESSBOT_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Server configuration
	if enabled := os.Getenv("ADDRESSBOT_SERVER_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Server.Enabled = e
		}
	}
	if port := os.Getenv("ADDRESSBOT_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("ADDRESSBOT_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Logging configuration
	if level := os.Getenv("ADDRESSBOT_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("ADDRESSBOT_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// FlagOverrides carries the command-line values that take precedence over files and env.
// Zero values leave the config untouched.
type FlagOverrides struct {
	Capacity  int
	CheckOnly bool
	Trace     bool
	Listen    string // host:port for the progress server
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, flags FlagOverrides) error {
	if flags.Capacity > 0 {
		config.Batch.Capacity = flags.Capacity
	}
	if flags.CheckOnly {
		config.Batch.CheckOnly = true
	}
	if flags.Trace {
		config.Batch.Trace = true
	}
	if flags.Listen != "" {
		host, portStr, found := strings.Cut(flags.Listen, ":")
		if !found {
			return fmt.Errorf("invalid listen address %q: expected host:port", flags.Listen)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid listen port %q: %w", portStr, err)
		}
		config.Server.Enabled = true
		config.Server.Host = host
		config.Server.Port = port
	}
	return nil
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ResolveLoginURL returns the explicit login URL or the one implied by the org type.
func (c *Config) ResolveLoginURL() string {
	if c.Target.LoginURL != "" {
		return c.Target.LoginURL
	}
	if strings.EqualFold(c.Target.OrgType, "production") {
		return ProductionLoginURL
	}
	return SandboxLoginURL
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
