package platform

import (
	"context"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessPrivilege checks elevation by inspecting the effective UID of the
// running process through gopsutil.
type ProcessPrivilege struct {
	// pid is the process to inspect; 0 means the current process.
	pid int32
}

// NewPrivilegeChecker returns a checker for the current process.
func NewPrivilegeChecker() PrivilegeChecker {
	return &ProcessPrivilege{}
}

// IsElevated reports whether the process runs as root. On platforms where
// gopsutil cannot read UIDs (Windows) it falls back to os.Geteuid, which
// reports -1 there, so the answer is false and callers elevate explicitly.
func (p *ProcessPrivilege) IsElevated(ctx context.Context) (bool, error) {
	pid := p.pid
	if pid == 0 {
		pid = int32(os.Getpid())
	}

	proc, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		if ctx.Err() != nil {
			return false, fmt.Errorf("privilege check cancelled: %w", ctx.Err())
		}
		return os.Geteuid() == 0, nil
	}

	uids, err := proc.UidsWithContext(ctx)
	if err != nil || len(uids) < 2 {
		return os.Geteuid() == 0, nil
	}

	// uids: real, effective, saved, filesystem
	return uids[1] == 0, nil
}
