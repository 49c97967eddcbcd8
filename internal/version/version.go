package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Overridden with -ldflags "-X github.com/flowmesh/streamlog/internal/version.Version=..."
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const shortCommitLen = 12

// Info describes the running streamlog binary
type Info struct {
	Version   string `json:"version" yaml:"version"`
	GitCommit string `json:"git_commit" yaml:"git_commit"`
	BuildTime string `json:"build_time" yaml:"build_time"`
	Dirty     bool   `json:"dirty" yaml:"dirty"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
}

// Get returns the linker-provided build values, falling back to the VCS
// stamps the go toolchain embeds for development builds.
func Get() Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	if build, ok := debug.ReadBuildInfo(); ok {
		applyBuildSettings(&info, build.Settings)
	}
	return info
}

func applyBuildSettings(info *Info, settings []debug.BuildSetting) {
	for _, setting := range settings {
		switch setting.Key {
		case "vcs.revision":
			if info.GitCommit == "unknown" {
				info.GitCommit = setting.Value
			}
		case "vcs.time":
			if info.BuildTime == "unknown" {
				info.BuildTime = setting.Value
			}
		case "vcs.modified":
			info.Dirty = setting.Value == "true"
		}
	}
}

// ShortCommit returns the abbreviated commit hash
func (i Info) ShortCommit() string {
	if len(i.GitCommit) > shortCommitLen {
		return i.GitCommit[:shortCommitLen]
	}
	return i.GitCommit
}

// String returns the one-line form printed by `streamlog version`
func (i Info) String() string {
	commit := i.ShortCommit()
	if i.Dirty {
		commit += "-dirty"
	}
	return fmt.Sprintf("streamlog version %s (commit: %s, built: %s, %s, %s)",
		i.Version, commit, i.BuildTime, i.GoVersion, i.Platform)
}

// String returns the one-line version of the running binary
func String() string {
	return Get().String()
}
