package platform

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v4/host"
)

// RealDetector implements Detector using the running host.
type RealDetector struct{}

// NewDetector creates a new platform detector.
func NewDetector() Detector {
	return &RealDetector{}
}

// Detect returns OS and architecture from the Go runtime and, on Linux,
// distribution details from gopsutil.
//
// A failed distro lookup is not an error: the distro fields stay empty and
// OS/arch detection still succeeds. A cancelled context is an error.
func (d *RealDetector) Detect(ctx context.Context) (*Info, error) {
	return detect(ctx, runtime.GOOS, runtime.GOARCH)
}

func detect(ctx context.Context, goos, goarch string) (*Info, error) {
	info := &Info{
		OS:      goos,
		ArchRaw: goarch,
	}

	// An architecture without a known alias is kept as reported. It has no
	// asset token, so only OS-only assets can match it.
	arch, err := normalizeArch(goarch)
	if err != nil {
		arch = strings.ToLower(strings.TrimSpace(goarch))
	}
	info.Arch = arch

	if goos != "linux" {
		return info, nil
	}

	id, family, version, err := host.PlatformInformationWithContext(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("platform detection cancelled: %w", ctx.Err())
		}
		return info, nil
	}

	if id = normalizePlatform(id); id != "" {
		info.Platform = id
		info.Family = mapFamily(family)
		info.Version = normalizePlatform(version)
	}

	return info, nil
}
