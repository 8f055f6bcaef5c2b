// Package pid keeps a single daemon instance per pid file.
package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"codeberg.org/mutker/thermalctl/internal/errors"
	"golang.org/x/sys/unix"
)

const DefaultFile = "thermalctl.pid"

// DefaultPath returns the pid file location under the temp directory.
func DefaultPath() string {
	return filepath.Join(os.TempDir(), DefaultFile)
}

// Write records the current process ID at path. It fails with
// ErrAlreadyRunning while the process named in an existing file is alive.
// Stale or unreadable files are replaced.
func Write(path string) error {
	errFactory := errors.New()

	if pid, ok := readPID(path); ok && pid != os.Getpid() && alive(pid) {
		return errFactory.WithData(errors.ErrAlreadyRunning, "pid "+strconv.Itoa(pid))
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove removes the pid file if it still belongs to this process.
func Remove(path string) error {
	pid, ok := readPID(path)
	if !ok || pid != os.Getpid() {
		return nil
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrInternal, err)
	}

	return nil
}

func readPID(path string) (int, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid <= 0 {
		return 0, false
	}

	return pid, true
}

// alive probes the process with signal 0. EPERM means it exists but belongs
// to another user.
func alive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}
