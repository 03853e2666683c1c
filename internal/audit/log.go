package audit

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Log appends records to a file. The file is opened per record so an
// operator may move or truncate it between iterations.
type Log struct {
	path string
	echo io.Writer
	mu   sync.Mutex
}

// Open prepares a Log at path, creating its parent directory. An empty
// path yields a Log that only echoes.
func Open(path string, echo io.Writer) (*Log, error) {
	if path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create audit log dir: %w", err)
			}
		}
	}
	return &Log{path: path, echo: echo}, nil
}

// Path returns the file the log appends to.
func (l *Log) Path() string {
	return l.path
}

// Append writes r to the log and to the echo writer, if any.
func (l *Log) Append(r Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.echo != nil {
		_, _ = r.WriteTo(l.echo)
	}
	if l.path == "" {
		return nil
	}
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	if _, err := r.WriteTo(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("append audit record: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close audit log: %w", err)
	}
	return nil
}
