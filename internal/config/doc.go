// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package config provides centralized configuration management for the cleo
ingestion engine.

This package handles loading, validation, and parsing of environment
variables shared by the supervisor and worker binaries. It ensures
consistent configuration across both and provides sensible defaults for
every optional setting.

# Configuration Sources

The package reads configuration, in increasing priority, from:
  - Built-in struct defaults
  - An optional config.yaml / config.yml file
  - Environment variables (always wins)

# Configuration Structure

  - DirectoriesConfig: intake/images/movies/duplicates/errors/log paths
  - ExtensionsConfig: image and movie extension allowlists
  - DuplicateConfig: MSE threshold and comparison pool size
  - SupervisorConfig: worker pool size, resource quotas, reap tuning
  - CatalogConfig: embedded catalog store path and connection pool bounds
  - GeocodeConfig: reverse geocoder retry/timeout/rate-limit tuning
  - LoggingConfig: file/console log levels, format, color codes

# Environment Variables

The mapping from variable name to config path lives in envMappings in
koanf.go; the recognized variables are:

	FILES_TO_PROCESS_DIRECTORY, IMAGE_DIRECTORY, MOVIES_DIRECTORY,
	DUPLICATE_DIRECTORY, ERROR_DIRECTORY, LOG_DIRECTORY,
	IMAGE_EXTENSIONS, MOVIE_EXTENSIONS, MSE_THRESHOLD, COMPARE_POOL_SIZE,
	MAX_CONTAINERS, WORKER_CPU_QUOTA, WORKER_MEMORY_MB,
	REAP_TIMEOUT_SECONDS, REAP_RETRIES, WORKER_BINARY_PATH,
	DB_NAME, DB_PATH, DB_USERNAME, DB_PASSWORD, DB_SERVER, DB_PORT,
	GEOCODE_USER_AGENT, GEOCODE_ATTEMPTS, GEOCODE_RETRY_DELAY,
	GEOCODE_TIMEOUT, FILE_DEBUG_LEVEL, CONSOLE_DEBUG_LEVEL, LOG_FORMAT,
	LOG_CALLER

# Usage Example

	cfg, err := config.LoadWithKoanf()
	if err != nil {
	    log.Fatalf("failed to load config: %v", err)
	}
	fmt.Printf("watching %s\n", cfg.Directories.Intake)

# Validation

Config.Validate collects every violation (empty required directory,
non-positive pool size, inconsistent min/max connections, and so on) and
returns them together rather than failing on the first one found.

# Thread Safety

A *Config is immutable after LoadWithKoanf returns, so it's safe to share
across goroutines without synchronization.
*/
package config
