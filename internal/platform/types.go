// Package platform detects the host OS, architecture and privilege level and
// maps them onto the naming used by release artifacts.
//
// Detection uses runtime.GOOS/GOARCH for the basics and gopsutil for Linux
// distribution details and the effective user of the running process. The
// detected Info can also be exposed to Lua configuration files as a read-only
// "platform" table.
package platform

import "context"

// Linux distribution family constants.
const (
	FamilyDebian  = "debian"  // Debian, Ubuntu, Linux Mint
	FamilyRHEL    = "rhel"    // RHEL, CentOS, Rocky Linux
	FamilyFedora  = "fedora"  // Fedora
	FamilySUSE    = "suse"    // openSUSE, SLES
	FamilyArch    = "arch"    // Arch Linux, Manjaro
	FamilyAlpine  = "alpine"  // Alpine Linux
	FamilyUnknown = "unknown" // Unrecognized distributions
)

// Info contains platform detection information.
type Info struct {
	OS       string // "linux", "darwin", "windows"
	Arch     string // "amd64", "arm64", "386", "arm" (normalized)
	ArchRaw  string // original GOARCH
	Platform string // distro ID (Linux only, e.g. "ubuntu")
	Family   string // canonical family (e.g. "debian")
	Version  string // distro version (Linux only, e.g. "22.04")
}

// IsLinux returns true if the platform is Linux.
func (i *Info) IsLinux() bool {
	return i.OS == "linux"
}

// IsMacOS returns true if the platform is macOS.
func (i *Info) IsMacOS() bool {
	return i.OS == "darwin"
}

// IsWindows returns true if the platform is Windows.
func (i *Info) IsWindows() bool {
	return i.OS == "windows"
}

// IsAppleSilicon returns true if running on macOS + arm64.
func (i *Info) IsAppleSilicon() bool {
	return i.OS == "darwin" && i.Arch == "arm64"
}

// AssetOS returns the OS token used in release asset names.
func (i *Info) AssetOS() (string, error) {
	return assetOS(i.OS)
}

// AssetArch returns the architecture token used in release asset names.
func (i *Info) AssetArch() (string, error) {
	return assetArch(i.Arch)
}

// Detector is the interface for platform detection.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}

// PrivilegeChecker reports whether the current process runs with elevated
// (root / administrator) privileges.
type PrivilegeChecker interface {
	IsElevated(ctx context.Context) (bool, error)
}
