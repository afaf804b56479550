// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package catalog

import (
	"os"
	"path/filepath"
	"runtime"
)

// duckdbVersion is the DuckDB version used for locally-installed extension
// paths; keep in sync with the duckdb-go driver's bundled DuckDB release.
const duckdbVersion = "v1.4.3"

// isExtensionInstalledLocally checks whether an extension file exists in the
// local DuckDB extension directory, so preloadExtensions can skip extensions
// that were never installed (e.g. in a minimal container image) instead of
// attempting a network INSTALL.
func isExtensionInstalledLocally(extensionName string) bool {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return false
	}

	platform := runtime.GOOS + "_" + runtime.GOARCH
	extPath := filepath.Join(homeDir, ".duckdb", "extensions", duckdbVersion, platform, extensionName+".duckdb_extension")

	_, err = os.Stat(extPath)
	return err == nil
}
