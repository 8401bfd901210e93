// Package version reports the build version of geodecomp.
package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var versionContent string

// Get returns the current version, with whitespace trimmed.
func Get() string {
	return strings.TrimSpace(versionContent)
}

// String returns the version prefixed for display.
func String() string {
	return "geodecomp v" + Get()
}
