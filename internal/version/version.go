// Package version reports the crew build version.
package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var versionContent string

// override is set at link time with -ldflags "-X .../version.override=v1.2.3".
var override string

// Get returns the build version. A link-time override wins over the
// embedded VERSION file.
func Get() string {
	if v := strings.TrimSpace(override); v != "" {
		return v
	}
	return strings.TrimSpace(versionContent)
}
