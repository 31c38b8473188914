// Package launch makes a downloaded binary executable and runs it, directly
// or through the platform's elevation mechanism.
package launch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/ZebulonRouseFrantzich/fetchrun/internal/config"
)

// PermissionError is a failure to mark a file executable or to obtain
// elevated privileges.
type PermissionError struct {
	Op   string // "chmod", "elevate"
	Path string
	Err  error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PermissionError) Unwrap() error {
	return e.Err
}

// ErrNoElevation is returned when no elevation helper is available.
var ErrNoElevation = errors.New("no elevation helper available")

// Launcher runs installed binaries. Execute and RunElevated return the
// child's exit code; a non-nil error means the child could not be started.
type Launcher interface {
	SetExecutable(path string) error
	Execute(ctx context.Context, path string, args []string) (int, error)
	RunElevated(ctx context.Context, path string, args []string) (int, error)
}

// Process launches binaries as child processes with inherited stdio.
type Process struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	goos     string
	lookPath func(string) (string, error)
	logger   config.Logger
}

// New returns a launcher wired to the current process's stdio.
func New(logger config.Logger) *Process {
	if logger == nil {
		logger = config.NopLogger()
	}
	return &Process{
		Stdin:    os.Stdin,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
		goos:     runtime.GOOS,
		lookPath: exec.LookPath,
		logger:   logger,
	}
}

// SetExecutable sets mode 0755 on path.
func (p *Process) SetExecutable(path string) error {
	if err := os.Chmod(path, 0755); err != nil {
		return &PermissionError{Op: "chmod", Path: path, Err: err}
	}
	return nil
}

// Execute runs path with args and waits for it.
func (p *Process) Execute(ctx context.Context, path string, args []string) (int, error) {
	p.logger.Debug("executing", "path", path, "args", args)
	//nolint:gosec // G204: path is the binary this process just installed
	cmd := exec.CommandContext(ctx, path, args...)
	return p.run(cmd)
}

// RunElevated runs path with administrator rights: through sudo on Unix
// and through an elevated PowerShell Start-Process on Windows.
func (p *Process) RunElevated(ctx context.Context, path string, args []string) (int, error) {
	name, argv, err := elevationCommand(p.goos, path, args)
	if err != nil {
		return -1, &PermissionError{Op: "elevate", Path: path, Err: err}
	}

	bin, err := p.lookPath(name)
	if err != nil {
		return -1, &PermissionError{Op: "elevate", Path: path, Err: fmt.Errorf("%w: %s not found", ErrNoElevation, name)}
	}

	p.logger.Debug("executing elevated", "helper", bin, "path", path)
	//nolint:gosec // G204: helper and arguments are built by elevationCommand
	cmd := exec.CommandContext(ctx, bin, argv...)
	code, err := p.run(cmd)
	if err != nil {
		return code, &PermissionError{Op: "elevate", Path: path, Err: err}
	}
	return code, nil
}

func (p *Process) run(cmd *exec.Cmd) (int, error) {
	cmd.Stdin = p.Stdin
	cmd.Stdout = p.Stdout
	cmd.Stderr = p.Stderr

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("run %s: %w", cmd.Path, err)
}

// elevationCommand returns the helper and its arguments that run path with
// args elevated on goos.
func elevationCommand(goos, path string, args []string) (string, []string, error) {
	switch goos {
	case "linux", "darwin", "freebsd", "openbsd", "netbsd":
		return "sudo", append([]string{path}, args...), nil
	case "windows":
		script := "$p = Start-Process -FilePath " + psQuote(path)
		if len(args) > 0 {
			quoted := make([]string, len(args))
			for i, a := range args {
				quoted[i] = psQuote(a)
			}
			script += " -ArgumentList " + strings.Join(quoted, ",")
		}
		script += " -Verb RunAs -Wait -PassThru; exit $p.ExitCode"
		return "powershell", []string{"-NoProfile", "-NonInteractive", "-Command", script}, nil
	default:
		return "", nil, fmt.Errorf("%w on %s", ErrNoElevation, goos)
	}
}

// psQuote returns s as a PowerShell single-quoted literal.
func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
