package main

import (
	"os"
	"runtime/debug"
	"strings"
	"sync"
)

var (
	versionOnce   sync.Once
	cachedVersion string
)

// appVersion returns MATHVIZ_VERSION when set, then the module version or
// VCS revision from build info, then "development".
func appVersion() string {
	versionOnce.Do(func() {
		cachedVersion = detectVersion(os.Getenv("MATHVIZ_VERSION"), readBuildInfo)
	})
	return cachedVersion
}

func readBuildInfo() (*debug.BuildInfo, bool) { return debug.ReadBuildInfo() }

func detectVersion(env string, buildInfo func() (*debug.BuildInfo, bool)) string {
	if v := strings.TrimSpace(env); v != "" {
		return v
	}
	if info, ok := buildInfo(); ok && info != nil {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && setting.Value != "" {
				rev := setting.Value
				if len(rev) > 12 {
					rev = rev[:12]
				}
				return "dev-" + rev
			}
		}
	}
	return "development"
}
