// Package checkpoint persists the harvest cursor: the next repository ID
// to query. The checkpoint file holds nothing but the decimal cursor.
package checkpoint

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

var (
	// ErrMissing reports an absent checkpoint file. There is no implicit
	// default; operators initialize the file explicitly.
	ErrMissing = errors.New("checkpoint file not found")
	// ErrMalformed reports a checkpoint whose contents are not a
	// non-negative integer.
	ErrMalformed = errors.New("checkpoint does not contain an integer")
	// ErrExists is returned by Init when the file is already present.
	ErrExists = errors.New("checkpoint file already exists")
)

// Store reads and writes the cursor file at a fixed path.
type Store struct {
	path string
}

// New returns a Store for path.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the checkpoint file location.
func (s *Store) Path() string {
	return s.path
}

// Read returns the persisted cursor.
func (s *Store) Read() (int64, error) {
	return ReadCursor(s.path)
}

// Write overwrites the persisted cursor.
func (s *Store) Write(cursor int64) error {
	return WriteCursor(s.path, cursor)
}

// Init creates the checkpoint with the given starting cursor. It refuses
// to replace an existing file unless force is set.
func (s *Store) Init(cursor int64, force bool) error {
	if cursor < 0 {
		return fmt.Errorf("initial cursor must be >= 0, got %d", cursor)
	}
	if !force {
		if _, err := os.Stat(s.path); err == nil {
			return fmt.Errorf("%w: %s", ErrExists, s.path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("stat checkpoint %s: %w", s.path, err)
		}
	}
	return WriteCursor(s.path, cursor)
}

// ReadCursor parses the cursor stored at path. Surrounding whitespace is
// ignored; anything else that is not a non-negative decimal integer is
// ErrMalformed.
func ReadCursor(path string) (int64, error) {
	// #nosec G304 -- the checkpoint path is operator supplied configuration.
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrMissing, path)
		}
		return 0, fmt.Errorf("could not process checkpoint %s: %w", path, err)
	}
	raw := strings.TrimSpace(string(data))
	cursor, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || cursor < 0 {
		return 0, fmt.Errorf("%w: %s contains %q", ErrMalformed, path, raw)
	}
	return cursor, nil
}

// WriteCursor replaces the contents of path with the decimal cursor.
// The write is not atomic: a crash mid-write can leave a partial file,
// which the next ReadCursor reports as ErrMalformed.
func WriteCursor(path string, cursor int64) error {
	if cursor < 0 {
		return fmt.Errorf("cursor must be >= 0, got %d", cursor)
	}
	if err := os.WriteFile(path, []byte(strconv.FormatInt(cursor, 10)), 0o600); err != nil {
		return fmt.Errorf("write checkpoint %s: %w", path, err)
	}
	return nil
}
