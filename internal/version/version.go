// Package version carries build metadata stamped at link time.
package version

import (
	"runtime"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String renders the one-line version banner.
func String() string {
	return "livesub " + Version + " (commit=" + commit() + ", date=" + Date + ", go=" + runtime.Version() + ")"
}

// commit falls back to the VCS revision recorded by the go tool when the
// linker did not stamp one.
func commit() string {
	if Commit != "none" && Commit != "" {
		return Commit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Commit
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && setting.Value != "" {
			if len(setting.Value) > 12 {
				return setting.Value[:12]
			}
			return setting.Value
		}
	}
	return Commit
}
