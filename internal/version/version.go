// Package version holds the build fingerprint of the forge binary. The
// variables are overridden at build time via -ldflags.
package version

import (
	"strings"

	"github.com/fatih/color"
)

var (
	// Version is the semantic version.
	Version = "0.1.0-dev"
	// GitCommit is the commit the binary was built from.
	GitCommit = ""
	// BuildDate is the build time in ISO-8601.
	BuildDate = ""
)

var (
	nameColor  = color.New(color.FgCyan, color.Bold)
	majorColor = color.New(color.FgYellow, color.Bold)
	minorColor = color.New(color.FgGreen, color.Bold)
	patchColor = color.New(color.FgBlue, color.Bold)
)

// Short returns "forge <version>" with each version component coloured.
// fatih/color drops the colours when stdout is not a terminal.
func Short() string {
	return nameColor.Sprint("forge") + " " + colorVersion(Version)
}

// Long appends the commit and build date when they are known.
func Long() string {
	var extra []string
	if GitCommit != "" {
		commit := GitCommit
		if len(commit) > 12 {
			commit = commit[:12]
		}
		extra = append(extra, "commit "+commit)
	}
	if BuildDate != "" {
		extra = append(extra, "built "+BuildDate)
	}
	if len(extra) == 0 {
		return Short()
	}
	return Short() + " (" + strings.Join(extra, ", ") + ")"
}

func colorVersion(v string) string {
	core, suffix, _ := strings.Cut(v, "-")
	parts := strings.SplitN(core, ".", 3)
	if len(parts) != 3 {
		return v
	}
	out := majorColor.Sprint(parts[0]) + "." + minorColor.Sprint(parts[1]) + "." + patchColor.Sprint(parts[2])
	if suffix != "" {
		out += "-" + suffix
	}
	return out
}
