// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration for the ingestion engine, loaded via
// LoadWithKoanf from defaults, an optional YAML file, and environment
// variables (highest priority).
type Config struct {
	Directories DirectoriesConfig `koanf:"directories"`
	Extensions  ExtensionsConfig  `koanf:"extensions"`
	Duplicate   DuplicateConfig   `koanf:"duplicate"`
	Supervisor  SupervisorConfig  `koanf:"supervisor"`
	Database    CatalogConfig     `koanf:"database"`
	Geocode     GeocodeConfig     `koanf:"geocode"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// DirectoriesConfig lists the absolute filesystem paths the engine reads
// from and writes to, settable via FILES_TO_PROCESS_DIRECTORY,
// IMAGE_DIRECTORY, MOVIES_DIRECTORY, DUPLICATE_DIRECTORY, ERROR_DIRECTORY,
// and LOG_DIRECTORY.
type DirectoriesConfig struct {
	Intake     string `koanf:"intake"`
	Images     string `koanf:"images"`
	Movies     string `koanf:"movies"`
	Duplicates string `koanf:"duplicates"`
	Errors     string `koanf:"errors"`
	Log        string `koanf:"log"`
}

// ExtensionsConfig gives the lowercased, dotless extension allowlists used
// by the supervisor to classify intake entries.
type ExtensionsConfig struct {
	Image []string `koanf:"image"`
	Movie []string `koanf:"movie"`
}

// DuplicateConfig tunes the duplicate matcher.
type DuplicateConfig struct {
	MSEThreshold    float64 `koanf:"mse_threshold"`
	ComparePoolSize int     `koanf:"compare_pool_size"`
}

// SupervisorConfig tunes the worker pool and reaping behavior.
type SupervisorConfig struct {
	MaxWorkers          int           `koanf:"max_workers"`
	WorkerCPUQuota      float64       `koanf:"worker_cpu_quota"`
	WorkerMemoryQuotaMB int           `koanf:"worker_memory_quota_mb"`
	ReapTimeout         time.Duration `koanf:"reap_timeout"`
	ReapRetries         int           `koanf:"reap_retries"`
	PollInterval        time.Duration `koanf:"poll_interval"`
	ScanInterval        time.Duration `koanf:"scan_interval"`

	// WorkerBinaryPath is the path to the cmd/worker executable the
	// supervisor starts for each accepted file. Defaults to the worker
	// binary installed alongside the supervisor binary.
	WorkerBinaryPath string `koanf:"worker_binary_path"`
}

// CatalogConfig configures the embedded catalog store. Path is an
// embedded DuckDB file; Server/Port/Username/Password are accepted so
// legacy DB_SERVER/DB_PORT/DB_USERNAME/DB_PASSWORD variables from older
// networked-database deployments don't break startup, and are otherwise
// unused by an embedded store.
type CatalogConfig struct {
	Name                   string        `koanf:"name"`
	Path                   string        `koanf:"path"`
	Server                 string        `koanf:"server"`
	Port                   int           `koanf:"port"`
	Username               string        `koanf:"username"`
	Password               string        `koanf:"password"`
	MaxMemory              string        `koanf:"max_memory"`
	Threads                int           `koanf:"threads"`
	PreserveInsertionOrder bool          `koanf:"preserve_insertion_order"`
	MinConns               int           `koanf:"min_conns"`
	MaxConns               int           `koanf:"max_conns"`
	ConnMaxLifetime        time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime        time.Duration `koanf:"conn_max_idle_time"`
}

// GeocodeConfig configures the reverse geocoder client.
type GeocodeConfig struct {
	UserAgent          string        `koanf:"user_agent"`
	Attempts           int           `koanf:"attempts"`
	RetryDelay         time.Duration `koanf:"retry_delay"`
	Timeout            time.Duration `koanf:"timeout"`
	RateLimitPerSecond float64       `koanf:"rate_limit_per_second"`
	BreakerMaxRequests uint32        `koanf:"breaker_max_requests"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout"`
}

// LoggingConfig configures the console/file dual logging sinks
// (FILE_DEBUG_LEVEL, CONSOLE_DEBUG_LEVEL, per-severity color codes).
type LoggingConfig struct {
	FileLevel    string            `koanf:"file_level"`
	ConsoleLevel string            `koanf:"console_level"`
	Format       string            `koanf:"format"`
	Caller       bool              `koanf:"caller"`
	Colors       map[string]string `koanf:"colors"`
}

// ConfigError collects every validation violation found in one pass, so an
// operator fixes a broken deployment in one round trip instead of one
// variable at a time.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration invalid:\n  - %s", strings.Join(e.Problems, "\n  - "))
}

// Validate checks the configuration for internally-consistent values and
// returns a *ConfigError listing every violation found rather than failing
// on the first.
func (c *Config) Validate() error {
	var problems []string

	if c.Directories.Intake == "" {
		problems = append(problems, "directories.intake must not be empty")
	}
	if c.Directories.Images == "" {
		problems = append(problems, "directories.images must not be empty")
	}
	if c.Directories.Movies == "" {
		problems = append(problems, "directories.movies must not be empty")
	}
	if c.Directories.Duplicates == "" {
		problems = append(problems, "directories.duplicates must not be empty")
	}
	if c.Directories.Errors == "" {
		problems = append(problems, "directories.errors must not be empty")
	}

	if len(c.Extensions.Image) == 0 {
		problems = append(problems, "extensions.image must list at least one extension")
	}
	if len(c.Extensions.Movie) == 0 {
		problems = append(problems, "extensions.movie must list at least one extension")
	}

	if c.Duplicate.MSEThreshold < 0 {
		problems = append(problems, "duplicate.mse_threshold must not be negative")
	}
	if c.Duplicate.ComparePoolSize <= 0 {
		problems = append(problems, "duplicate.compare_pool_size must be positive")
	}

	if c.Supervisor.MaxWorkers <= 0 {
		problems = append(problems, "supervisor.max_workers must be positive")
	}
	if c.Supervisor.ReapRetries <= 0 {
		problems = append(problems, "supervisor.reap_retries must be positive")
	}

	if c.Database.Path == "" {
		problems = append(problems, "database.path must not be empty")
	}
	if c.Database.MinConns <= 0 {
		problems = append(problems, "database.min_conns must be positive")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		problems = append(problems, "database.max_conns must be >= database.min_conns")
	}

	if c.Geocode.Attempts <= 0 {
		problems = append(problems, "geocode.attempts must be positive")
	}
	if c.Geocode.Timeout <= 0 {
		problems = append(problems, "geocode.timeout must be positive")
	}

	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}
	return nil
}
