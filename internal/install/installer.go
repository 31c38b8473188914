// Package install drives one installation: resolve the release, pick the
// asset for this host, download it unless it is already present, then make
// it executable and launch it.
package install

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ZebulonRouseFrantzich/fetchrun/internal/config"
	"github.com/ZebulonRouseFrantzich/fetchrun/internal/download"
	"github.com/ZebulonRouseFrantzich/fetchrun/internal/launch"
	"github.com/ZebulonRouseFrantzich/fetchrun/internal/platform"
	"github.com/ZebulonRouseFrantzich/fetchrun/internal/release"
	"github.com/ZebulonRouseFrantzich/fetchrun/internal/transaction"
)

// ReleaseSource resolves release metadata.
type ReleaseSource interface {
	Latest(ctx context.Context) (*release.Info, error)
	ByTag(ctx context.Context, version string) (*release.Info, error)
}

// Downloader fetches a URL to a destination path.
type Downloader interface {
	Fetch(ctx context.Context, url, destination string, observe download.PhaseFunc) (*download.Result, error)
}

// Deps are the collaborators of an Installer.
type Deps struct {
	Detector   platform.Detector
	Privileges platform.PrivilegeChecker
	Releases   ReleaseSource
	Downloader Downloader
	Launcher   launch.Launcher
	Logger     config.Logger
}

// Result summarizes a run.
type Result struct {
	Destination string
	Version     string
	// Cached is true when the destination already existed and nothing was
	// downloaded.
	Cached   bool
	Download *download.Result
	Launched bool
	Elevated bool
	// ExitCode is the launched binary's exit status.
	ExitCode int
	States   []State
}

// Installer runs the install state machine. It is used for a single run.
type Installer struct {
	cfg    config.Config
	deps   Deps
	runID  string
	logger config.Logger

	state   State
	history []State
}

// New returns an installer for cfg. runID tags log lines and the
// destination lock.
func New(cfg config.Config, deps Deps, runID string) *Installer {
	logger := deps.Logger
	if logger == nil {
		logger = config.NopLogger()
	}
	return &Installer{cfg: cfg, deps: deps, runID: runID, logger: logger}
}

// State returns the current state.
func (i *Installer) State() State {
	return i.state
}

// Run performs the installation. A non-nil error means the run ended in
// StateFatalFailed. A launched binary that exits non-zero is not an error;
// its status is in Result.ExitCode.
func (i *Installer) Run(ctx context.Context) (*Result, error) {
	res, err := i.run(ctx)
	if err != nil {
		i.transition(StateFatalFailed)
		i.logger.Error("install failed", "state", i.state.String(), "error", err)
	}
	if res == nil {
		res = &Result{}
	}
	res.States = append([]State(nil), i.history...)
	return res, err
}

func (i *Installer) run(ctx context.Context) (*Result, error) {
	host, err := i.deps.Detector.Detect(ctx)
	if err != nil {
		return nil, fmt.Errorf("detect platform: %w", err)
	}
	i.logger.Debug("platform detected", "os", host.OS, "arch", host.Arch)

	// A pinned version names the destination without any network call.
	if i.cfg.Version != "" {
		if path, ok, err := i.existing(host, i.cfg.Version); err != nil {
			return nil, err
		} else if ok {
			return i.installCached(ctx, path, i.cfg.Version)
		}
	}

	info, err := i.resolve(ctx)
	if err != nil {
		return nil, err
	}

	asset, err := release.Select(info, i.cfg.Project, host.OS, host.Arch)
	if err != nil {
		return nil, fmt.Errorf("select asset for %s/%s: %w", host.OS, host.Arch, err)
	}
	dest := filepath.Join(i.cfg.DownloadsDir, asset.Name)

	if exists, err := fileExists(dest); err != nil {
		return nil, err
	} else if exists {
		return i.installCached(ctx, dest, info.Version)
	}

	res := &Result{Destination: dest, Version: info.Version}

	lock, err := transaction.AcquireLock(ctx, dest, i.runID)
	if err != nil {
		if errors.Is(err, transaction.ErrLockExists) {
			if holder, rerr := transaction.ReadInfo(dest); rerr == nil {
				i.logger.Warn("destination locked", "pid", holder.PID, "run_id", holder.RunID, "since", holder.Timestamp)
			}
		}
		return nil, fmt.Errorf("lock %s: %w", dest, err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			i.logger.Warn("release lock", "error", err)
		}
	}()

	i.logger.Info("downloading", "asset", asset.Name, "version", info.Version, "size", asset.Size)
	dl, err := i.deps.Downloader.Fetch(ctx, asset.DownloadURL, dest, i.observe)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", asset.Name, err)
	}
	res.Download = dl
	i.transition(StateInstalled)
	i.logger.Info("installed", "path", dest, "size", dl.Size, "fallback", dl.FellBack)

	if err := i.launch(ctx, res); err != nil {
		return res, err
	}
	return res, nil
}

func (i *Installer) resolve(ctx context.Context) (*release.Info, error) {
	if i.cfg.Version != "" {
		info, err := i.deps.Releases.ByTag(ctx, i.cfg.Version)
		if err != nil {
			return nil, fmt.Errorf("resolve release: %w", err)
		}
		return info, nil
	}
	info, err := i.deps.Releases.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve release: %w", err)
	}
	return info, nil
}

// existing looks for an already installed asset of version, trying the
// platform-qualified name first.
func (i *Installer) existing(host *platform.Info, version string) (string, bool, error) {
	qualified, generic, err := release.AssetNames(i.cfg.Project, version, host.OS, host.Arch)
	if err != nil {
		return "", false, fmt.Errorf("asset name for %s/%s: %w", host.OS, host.Arch, err)
	}
	for _, name := range []string{qualified, generic} {
		if name == "" {
			continue
		}
		path := filepath.Join(i.cfg.DownloadsDir, name)
		ok, err := fileExists(path)
		if err != nil {
			return "", false, err
		}
		if ok {
			return path, true, nil
		}
	}
	return "", false, nil
}

func (i *Installer) installCached(ctx context.Context, path, version string) (*Result, error) {
	i.logger.Info("already downloaded, skipping download", "path", path)
	i.transition(StateInstalled)

	res := &Result{Destination: path, Version: version, Cached: true}
	if err := i.launch(ctx, res); err != nil {
		return res, err
	}
	return res, nil
}

// launch marks the installed file executable and runs it, elevated when
// configured and not already privileged.
func (i *Installer) launch(ctx context.Context, res *Result) error {
	if err := i.deps.Launcher.SetExecutable(res.Destination); err != nil {
		return err
	}
	if !i.cfg.Launch {
		return nil
	}

	elevated, err := i.deps.Privileges.IsElevated(ctx)
	if err != nil {
		i.logger.Warn("privilege check failed, assuming unprivileged", "error", err)
	}

	var code int
	if i.cfg.Elevate && !elevated {
		i.logger.Info("requesting elevation", "path", res.Destination)
		code, err = i.deps.Launcher.RunElevated(ctx, res.Destination, i.cfg.Args)
		res.Elevated = true
	} else {
		code, err = i.deps.Launcher.Execute(ctx, res.Destination, i.cfg.Args)
	}
	if err != nil {
		return fmt.Errorf("launch %s: %w", res.Destination, err)
	}

	res.Launched = true
	res.ExitCode = code
	if code != 0 {
		i.logger.Warn("launched binary exited with error", "code", code)
	}
	return nil
}

// observe maps download phases onto install states.
func (i *Installer) observe(p download.Phase, plan *download.Plan) {
	switch p {
	case download.PhaseDownloading:
		i.transition(StatePlanned)
		i.transition(StateDownloading)
		i.logger.Debug("plan", "segments", len(plan.Segments), "size", plan.TotalSize)
	case download.PhaseValid:
		i.transition(StateValid)
	case download.PhaseMerging:
		i.transition(StateMerging)
	case download.PhaseInvalid:
		i.transition(StateInvalid)
	case download.PhaseFallbackDownloading:
		i.transition(StateFallbackDownloading)
	}
}

func (i *Installer) transition(to State) {
	if !canTransition(i.state, to) {
		i.logger.Error("invalid state transition", "from", i.state.String(), "to", to.String())
		return
	}
	i.logger.Debug("state", "from", i.state.String(), "to", to.String(), "run_id", i.runID)
	i.state = to
	i.history = append(i.history, to)
}

func fileExists(path string) (bool, error) {
	fi, err := os.Stat(path)
	if err == nil {
		if fi.IsDir() {
			return false, fmt.Errorf("destination %s is a directory", path)
		}
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("check destination: %w", err)
}
