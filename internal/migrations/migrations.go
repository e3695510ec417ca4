// Package migrations embeds the SQL schema for every supported driver.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// For returns the migration directory for a database driver ("postgres" or "sqlite").
func For(driver string) (fs.FS, error) {
	return fs.Sub(files, driver)
}
