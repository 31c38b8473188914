package release

import (
	"fmt"
	"strings"

	"github.com/ZebulonRouseFrantzich/fetchrun/internal/platform"
)

// NotFoundError is returned when no asset matches the requested platform.
type NotFoundError struct {
	Tried     []string
	Available []string
}

func (e *NotFoundError) Error() string {
	available := "none"
	if len(e.Available) > 0 {
		available = strings.Join(e.Available, ", ")
	}
	return fmt.Sprintf("no release asset named %s (available: %s)",
		strings.Join(e.Tried, " or "), available)
}

// AssetNames returns the platform-qualified and generic asset names for
// project at version on the given OS and architecture. goos is a GOOS value,
// arch a normalized architecture ("amd64", "arm64", "386", "arm").
//
// An architecture without an asset token yields an empty qualified name;
// the generic name does not depend on it. An unsupported OS is an error.
func AssetNames(project, version, goos, arch string) (qualified, generic string, err error) {
	p := &platform.Info{OS: goos, Arch: arch}

	osToken, err := p.AssetOS()
	if err != nil {
		return "", "", err
	}

	ext := ""
	if p.IsWindows() {
		ext = ".exe"
	}
	version = strings.TrimPrefix(version, "v")

	if archToken, err := p.AssetArch(); err == nil {
		qualified = fmt.Sprintf("%s_%s_%s_%s%s", project, version, osToken, archToken, ext)
	}
	generic = fmt.Sprintf("%s_%s_%s%s", project, version, osToken, ext)
	return qualified, generic, nil
}

// candidates returns the non-empty names in preference order.
func candidates(qualified, generic string) []string {
	if qualified == "" {
		return []string{generic}
	}
	return []string{qualified, generic}
}

// Select picks the asset for goos/arch: the platform-qualified name first,
// then the generic OS-only name. Matching is exact.
func Select(info *Info, project, goos, arch string) (Asset, error) {
	qualified, generic, err := AssetNames(project, info.Version, goos, arch)
	if err != nil {
		return Asset{}, err
	}

	tried := candidates(qualified, generic)
	for _, want := range tried {
		for _, a := range info.Assets {
			if a.Name == want {
				return a, nil
			}
		}
	}

	return Asset{}, &NotFoundError{
		Tried:     tried,
		Available: info.Names(),
	}
}
