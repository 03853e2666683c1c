package process

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// maxLogCandidates bounds the numbered siblings tried by ResolveLogPath.
const maxLogCandidates = 1000

// LockProbe reports whether path is currently held by another writer.
type LockProbe func(path string) bool

// ResolveLogPath returns a log path no other run is writing to. The
// path is first converted to the host's separator style. While probe
// reports it locked, a counter is inserted before the extension of the
// requested name: a.log, a1.log, a2.log, ... An empty path is returned
// unchanged.
func ResolveLogPath(path string, probe LockProbe) (string, error) {
	if path == "" {
		return "", nil
	}
	if probe == nil {
		probe = ProbeLocked
	}
	base := NormalizeSeparators(path)
	candidate := base
	for n := 1; probe(candidate); n++ {
		if n > maxLogCandidates {
			return "", fmt.Errorf("no unlocked log path found for %s after %d attempts", base, maxLogCandidates)
		}
		candidate = numbered(base, n)
	}
	return candidate, nil
}

// NormalizeSeparators converts path separators to the host convention.
func NormalizeSeparators(path string) string {
	return normalizeSeparators(path, runtime.GOOS)
}

func normalizeSeparators(path, goos string) string {
	if goos == "windows" {
		return strings.ReplaceAll(path, "/", `\`)
	}
	return strings.ReplaceAll(path, `\`, "/")
}

func numbered(path string, n int) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + strconv.Itoa(n) + ext
}

// ProbeLocked is the default LockProbe. A missing file is free. An
// existing file is locked when it cannot be opened for writing, when an
// exclusive advisory lock cannot be taken without blocking, or when a
// single byte cannot be appended.
func ProbeLocked(path string) bool {
	if _, err := os.Stat(path); err != nil {
		return !errors.Is(err, fs.ErrNotExist)
	}
	// #nosec G304 -- log paths are operator supplied configuration.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return true
	}
	defer f.Close()
	if err := tryLock(f); err != nil {
		return true
	}
	defer unlock(f) //nolint:errcheck // closing the file drops the lock as well
	if _, err := f.Write([]byte{'\n'}); err != nil {
		return true
	}
	return false
}

// holdLock takes an advisory lock on path for the lifetime of a child so
// that concurrent runs probing the same name move to a sibling. The
// returned func releases it. Failure to lock is logged and ignored.
func holdLock(path string, logger *zap.Logger) func() {
	if path == "" {
		return func() {}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			logger.Warn("create log directory failed", zap.String("dir", dir), zap.Error(err))
		}
	}
	// #nosec G304 -- log paths are operator supplied configuration.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o600)
	if err != nil {
		logger.Warn("open log for locking failed", zap.String("log_path", path), zap.Error(err))
		return func() {}
	}
	if err := tryLock(f); err != nil {
		logger.Warn("lock log failed", zap.String("log_path", path), zap.Error(err))
	}
	return func() {
		_ = unlock(f)
		_ = f.Close()
	}
}
