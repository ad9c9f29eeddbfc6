// Package lockfile keeps a single bot process polling a token at a time.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/julianstephens/salonbot/internal/constants"
)

var (
	findProcessFunc = ps.FindProcess
	getpidFunc      = os.Getpid

	ErrAlreadyRunning = errors.New("another salonbot instance is running")
)

// Lock is a held lockfile. The file contents are "<pid>|<port>".
type Lock struct {
	path string
	pid  int
}

// Acquire writes the lockfile at path unless a live salonbot process already
// owns it. Stale or malformed lockfiles are replaced.
func Acquire(path, port string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lockfile directory: %w", err)
	}

	if pid, err := readOwner(path); err == nil {
		if pid != getpidFunc() {
			return nil, fmt.Errorf("%w (pid %d, lockfile %s)", ErrAlreadyRunning, pid, path)
		}
	}

	pid := getpidFunc()
	content := fmt.Sprintf("%d|%s", pid, strings.TrimSpace(port))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write lockfile: %w", err)
	}
	return &Lock{path: path, pid: pid}, nil
}

// Release removes the lockfile if it still belongs to this process.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	content, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	// Only the pid decides ownership; the port is informational.
	pid, err := parsePID(string(content))
	if err != nil || pid != l.pid {
		return nil
	}
	return os.Remove(l.path)
}

func (l *Lock) Path() string { return l.path }

// readOwner returns the pid of a live salonbot process named in the lockfile.
func readOwner(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.New("lockfile not found")
	}
	pid, _, err := parse(string(content))
	if err != nil {
		return 0, err
	}

	process, err := findProcessFunc(pid)
	if err != nil || process == nil {
		return 0, errors.New("lockfile owner is not running")
	}
	if !strings.HasPrefix(process.Executable(), constants.AppName) {
		return 0, fmt.Errorf("process with PID %d is not %s (is %s)", pid, constants.AppName, process.Executable())
	}
	return pid, nil
}

func parsePID(content string) (int, error) {
	head, _, _ := strings.Cut(strings.TrimSpace(content), "|")
	pid, err := strconv.Atoi(head)
	if err != nil || pid <= 0 {
		return 0, errors.New("invalid process ID in lockfile")
	}
	return pid, nil
}

func parse(content string) (int, string, error) {
	parts := strings.Split(strings.TrimSpace(content), "|")
	if len(parts) != 2 {
		return 0, "", errors.New("lockfile is malformed")
	}
	pid, err := strconv.Atoi(parts[0])
	if err != nil || pid <= 0 {
		return 0, "", errors.New("invalid process ID in lockfile")
	}
	port := parts[1]
	if port != "" {
		portNum, err := strconv.Atoi(port)
		if err != nil {
			return 0, "", errors.New("invalid port number in lockfile")
		}
		if portNum < 1 || portNum > 65535 {
			return 0, "", fmt.Errorf("port number %d is outside valid range (1-65535)", portNum)
		}
	}
	return pid, port, nil
}
