// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/cleo/config.yaml",
	"/etc/cleo/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Directories: DirectoriesConfig{
			Intake:     "/data/intake",
			Images:     "/data/images",
			Movies:     "/data/movies",
			Duplicates: "/data/duplicates",
			Errors:     "/data/errors",
			Log:        "/data/log",
		},
		Extensions: ExtensionsConfig{
			Image: []string{"jpg", "jpeg", "png", "gif", "heic", "heif", "bmp", "tiff"},
			Movie: []string{"mp4", "mov", "avi", "mkv", "m4v"},
		},
		Duplicate: DuplicateConfig{
			MSEThreshold:    200.0,
			ComparePoolSize: 10,
		},
		Supervisor: SupervisorConfig{
			MaxWorkers:          13,
			WorkerCPUQuota:      0.5,
			WorkerMemoryQuotaMB: 1024,
			ReapTimeout:         120 * time.Second,
			ReapRetries:         3,
			PollInterval:        1 * time.Second,
			ScanInterval:        5 * time.Second,
			WorkerBinaryPath:    "cleo-worker",
		},
		Database: CatalogConfig{
			Name:                   "cleo",
			Path:                   "/data/cleo.duckdb",
			Server:                 "",
			Port:                   0,
			Username:               "",
			Password:               "",
			MaxMemory:              "2GB",
			Threads:                0, // 0 = use runtime.NumCPU()
			PreserveInsertionOrder: true,
			MinConns:               1,
			MaxConns:               20,
			ConnMaxLifetime:        time.Hour,
			ConnMaxIdleTime:        5 * time.Minute,
		},
		Geocode: GeocodeConfig{
			UserAgent:          "cleo-ingest/1.0",
			Attempts:           3,
			RetryDelay:         5 * time.Second,
			Timeout:            10 * time.Second,
			RateLimitPerSecond: 1.0,
			BreakerMaxRequests: 1,
			BreakerTimeout:     2 * time.Minute,
		},
		Logging: LoggingConfig{
			FileLevel:    "info",
			ConsoleLevel: "info",
			Format:       "console",
			Caller:       false,
			Colors: map[string]string{
				"debug": "37",
				"info":  "36",
				"warn":  "33",
				"error": "31",
				"fatal": "35",
			},
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
//
// This function is the preferred way to load configuration and provides:
//   - Type-safe configuration unmarshaling
//   - Clear precedence: ENV > File > Defaults
//   - Support for nested configuration via koanf struct tags
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Post-process slice fields from comma-separated strings
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	// REAP_TIMEOUT_SECONDS carries a bare number of seconds.
	if raw, ok := k.Get("supervisor.reap_timeout").(string); ok {
		if secs, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			if err := k.Set("supervisor.reap_timeout", time.Duration(secs)*time.Second); err != nil {
				return nil, fmt.Errorf("failed to set supervisor.reap_timeout: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices.
var sliceConfigPaths = []string{
	"extensions.image",
	"extensions.movie",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// This is necessary because env vars come in as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		if strVal, ok := val.(string); ok {
			if strVal == "" {
				continue
			}
			parts := strings.Split(strVal, ",")
			trimmed := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.ToLower(strings.TrimSpace(p))
				p = strings.TrimPrefix(p, ".")
				if p != "" {
					trimmed = append(trimmed, p)
				}
			}
			if len(trimmed) > 0 {
				if err := k.Set(path, trimmed); err != nil {
					return fmt.Errorf("failed to set %s: %w", path, err)
				}
			}
		}
	}
	return nil
}

// envMappings maps each recognized SCREAMING_SNAKE environment variable
// name to its dotted koanf config path. Using an explicit map (rather
// than a generic "_"->"." transform) avoids mangling multi-word variable
// names like FILES_TO_PROCESS_DIRECTORY.
var envMappings = map[string]string{
	"files_to_process_directory": "directories.intake",
	"image_directory":            "directories.images",
	"movies_directory":           "directories.movies",
	"duplicate_directory":        "directories.duplicates",
	"error_directory":            "directories.errors",
	"log_directory":              "directories.log",

	"image_extensions": "extensions.image",
	"movie_extensions": "extensions.movie",

	"mse_threshold":        "duplicate.mse_threshold",
	"compare_pool_size":    "duplicate.compare_pool_size",
	"max_containers":       "supervisor.max_workers",
	"worker_cpu_quota":     "supervisor.worker_cpu_quota",
	"worker_memory_mb":     "supervisor.worker_memory_quota_mb",
	"reap_timeout_seconds": "supervisor.reap_timeout",
	"reap_retries":         "supervisor.reap_retries",
	"worker_binary_path":   "supervisor.worker_binary_path",

	"db_name":     "database.name",
	"db_path":     "database.path",
	"db_server":   "database.server",
	"db_port":     "database.port",
	"db_username": "database.username",
	"db_password": "database.password",

	"geocode_user_agent":  "geocode.user_agent",
	"geocode_attempts":    "geocode.attempts",
	"geocode_retry_delay": "geocode.retry_delay",
	"geocode_timeout":     "geocode.timeout",

	"file_debug_level":    "logging.file_level",
	"console_debug_level": "logging.console_level",
	"log_format":          "logging.format",
	"log_caller":          "logging.caller",
}

// envTransformFunc transforms recognized environment variable names to koanf
// config paths. Unmapped keys are dropped so unrelated environment variables
// don't pollute the configuration tree.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)
	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}

// GetKoanfInstance returns a new Koanf instance for advanced usage (testing
// with mock configuration sources).
func GetKoanfInstance() *koanf.Koanf {
	return koanf.New(".")
}
