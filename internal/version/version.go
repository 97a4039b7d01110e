// Package version reports the build identity of the binary.
package version

import (
	"runtime/debug"
	"sync"
)

// Overridden with -ldflags "-X github.com/memohai/inboxd/internal/version.Version=...".
var (
	Version    = "dev"
	CommitHash = ""
	BuildTime  = ""
)

const shortHashLen = 7

// Info is the build identity exposed by the version command and /ping.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"buildTime,omitempty"`
}

var (
	infoOnce sync.Once
	info     Info
)

// Get returns the build identity, filling commit and time from VCS stamps when
// ldflags left them empty.
func Get() Info {
	infoOnce.Do(func() {
		info = resolve(Version, CommitHash, BuildTime, readBuildSettings())
	})
	return info
}

// String renders "dev (abc1234)".
func (i Info) String() string {
	if i.Commit == "" {
		return i.Version
	}
	commit := i.Commit
	if len(commit) > shortHashLen {
		commit = commit[:shortHashLen]
	}
	return i.Version + " (" + commit + ")"
}

func resolve(ver, commit, built string, settings map[string]string) Info {
	if commit == "" {
		commit = settings["vcs.revision"]
	}
	if built == "" {
		built = settings["vcs.time"]
	}
	return Info{Version: ver, Commit: commit, BuildTime: built}
}

func readBuildSettings() map[string]string {
	out := map[string]string{}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return out
	}
	for _, s := range bi.Settings {
		out[s.Key] = s.Value
	}
	return out
}
