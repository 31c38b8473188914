package config

import (
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultRepo is the GitHub repository whose releases are installed.
	DefaultRepo = "yeongpin/cursor-free-vip"
	// DefaultProject is the artifact name prefix used by release assets.
	DefaultProject = "CursorFreeVIP"
	// DefaultAPIBase is the GitHub REST API root.
	DefaultAPIBase = "https://api.github.com"
	// DefaultUserAgent is sent with every outbound request.
	DefaultUserAgent = "fetchrun/1.0"
	// DefaultParallelism is the number of segments for large downloads.
	DefaultParallelism = 4
	// DefaultSmallFileThreshold is the size below which downloads are not split.
	DefaultSmallFileThreshold = 1 << 20
	// DefaultProgressInterval is how often the progress view is sampled.
	DefaultProgressInterval = 200 * time.Millisecond
	// DefaultProgressStep is the minimum percentage change that triggers a render.
	DefaultProgressStep = 1.0
	// MaxParallelism bounds the number of concurrent segment workers.
	MaxParallelism = 16
)

// Config is the complete runtime configuration of an install.
type Config struct {
	Repo               string        `lua:"repo" validate:"required,contains=/"`
	Project            string        `lua:"project" validate:"required,excludesall=/"`
	// Version pins a release ("1.11.3" or "v1.11.3"). Empty means latest.
	Version            string        `lua:"version" validate:"omitempty,excludesall=/ "`
	DownloadsDir       string        `lua:"downloads_dir" validate:"required"`
	Parallelism        int           `lua:"parallelism" validate:"min=1,max=16"`
	SmallFileThreshold int64         `lua:"small_file_threshold" validate:"gt=0"`
	ProgressInterval   time.Duration `lua:"progress_interval_ms" validate:"gt=0"`
	ProgressStep       float64       `lua:"progress_step" validate:"gt=0,lte=100"`
	APIBase            string        `lua:"api_base" validate:"required,url"`
	UserAgent          string        `lua:"user_agent" validate:"required"`
	RequestsPerSecond  int           `lua:"requests_per_second" validate:"gte=0"`
	Burst              int           `lua:"burst" validate:"gte=0"`

	// Launch runs the installed binary after installation.
	Launch bool `lua:"launch"`
	// Elevate requests root/administrator privileges for the launched binary
	// when the current process does not already have them.
	Elevate bool `lua:"elevate"`
	// Args are passed to the launched binary.
	Args []string `lua:"args"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Repo:               DefaultRepo,
		Project:            DefaultProject,
		DownloadsDir:       DefaultDownloadsDir(),
		Parallelism:        DefaultParallelism,
		SmallFileThreshold: DefaultSmallFileThreshold,
		ProgressInterval:   DefaultProgressInterval,
		ProgressStep:       DefaultProgressStep,
		APIBase:            DefaultAPIBase,
		UserAgent:          DefaultUserAgent,
		Launch:             true,
		Elevate:            true,
	}
}

// DefaultDownloadsDir returns ~/Downloads, or ./Downloads when the home
// directory cannot be determined.
func DefaultDownloadsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "Downloads"
	}
	return filepath.Join(home, "Downloads")
}

// DefaultConfigPath returns the location of the optional Lua config file
// (~/.config/fetchrun/fetchrun.lua on Linux).
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "fetchrun.lua")
	}
	return filepath.Join(dir, "fetchrun", "fetchrun.lua")
}
