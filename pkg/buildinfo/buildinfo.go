// Package buildinfo exposes the binary's version identity for /version.
package buildinfo

import (
	"runtime/debug"
	"strings"
	"time"
)

// Set via -ldflags "-X smsrelay/pkg/buildinfo.Version=..." at release time.
var (
	Version   = "dev"
	Commit    = ""
	BuildTime = ""
)

// Summary returns a one-line human-readable build identifier.
func Summary() string {
	commit := Commit
	built := BuildTime

	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if built == "" {
					built = s.Value
				}
			}
		}
	}
	if len(commit) > 12 {
		commit = commit[:12]
	}

	var b strings.Builder
	b.WriteString("smsrelay ")
	b.WriteString(Version)
	if commit != "" {
		b.WriteString(" (")
		b.WriteString(commit)
		b.WriteString(")")
	}
	if built != "" {
		b.WriteString(" built ")
		b.WriteString(built)
	} else {
		b.WriteString(" at ")
		b.WriteString(time.Now().UTC().Format(time.RFC3339))
	}
	return b.String()
}
