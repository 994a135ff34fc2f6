package buildinfo

import (
    "runtime"
    "runtime/debug"
)

// Set at link time with -ldflags "-X routeopt/internal/buildinfo.Version=...".
var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

type Info struct {
    Version   string `json:"version"`
    Commit    string `json:"commit,omitempty"`
    BuiltAt   string `json:"builtAt,omitempty"`
    GoVersion string `json:"goVersion"`
}

// Get returns the link-time values, falling back to the VCS revision
// recorded by the toolchain when no commit was injected.
func Get() Info {
    info := Info{Version: Version, Commit: Commit, BuiltAt: BuiltAt, GoVersion: runtime.Version()}
    if info.Commit == "" {
        if bi, ok := debug.ReadBuildInfo(); ok {
            for _, s := range bi.Settings {
                switch s.Key {
                case "vcs.revision":
                    info.Commit = s.Value
                case "vcs.time":
                    if info.BuiltAt == "" { info.BuiltAt = s.Value }
                }
            }
        }
    }
    return info
}
