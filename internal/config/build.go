package config

// Linker-injected build metadata variables. These are set at compile time via
// -ldflags, for example:
//
//	go build -ldflags "-X fetchgate/internal/config.version=1.2.3 \
//	    -X fetchgate/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X fetchgate/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// The defaults apply to local builds.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo returns the linker-injected build metadata.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}
