package assets

import (
	"embed"
)

//go:embed layout.toml
var FS embed.FS

// DefaultLayout returns the built-in 3x4 board description.
func DefaultLayout() ([]byte, error) {
	return FS.ReadFile("layout.toml")
}
