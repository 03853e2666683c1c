package checkpoint_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/repo-harvester/internal/checkpoint"
)

func writeFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gitdwnld.id")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestReadCursorValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		contents string
		want     int64
	}{
		{name: "zero", contents: "0", want: 0},
		{name: "plain", contents: "42", want: 42},
		{name: "trailing newline", contents: "1042\n", want: 1042},
		{name: "padded", contents: "  9000000 \r\n", want: 9000000},
		{name: "large", contents: "9223372036854775807", want: 9223372036854775807},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := checkpoint.ReadCursor(writeFile(t, tt.contents))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadCursorMalformed(t *testing.T) {
	t.Parallel()

	for _, contents := range []string{"", "abc", "4 2", "-1", "1.5", "0x10", "42abc"} {
		contents := contents
		t.Run(contents, func(t *testing.T) {
			t.Parallel()
			_, err := checkpoint.ReadCursor(writeFile(t, contents))
			require.ErrorIs(t, err, checkpoint.ErrMalformed)
		})
	}
}

func TestReadCursorMissing(t *testing.T) {
	t.Parallel()

	_, err := checkpoint.ReadCursor(filepath.Join(t.TempDir(), "absent.id"))
	require.ErrorIs(t, err, checkpoint.ErrMissing)
}

func TestReadCursorDirectory(t *testing.T) {
	t.Parallel()

	_, err := checkpoint.ReadCursor(t.TempDir())
	require.Error(t, err)
	assert.NotErrorIs(t, err, checkpoint.ErrMissing)
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := checkpoint.New(writeFile(t, "123456789"))
	for _, v := range []int64{0, 1, 1000, 3042, 10000000} {
		require.NoError(t, store.Write(v))
		got, err := store.Read()
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}

	// #nosec G304 -- test reads from the controlled temp directory.
	raw, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Equal(t, "10000000", string(raw), "write must replace the whole file")
}

func TestWriteCursorRejectsNegative(t *testing.T) {
	t.Parallel()

	require.Error(t, checkpoint.WriteCursor(filepath.Join(t.TempDir(), "c.id"), -5))
}

func TestStoreInit(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "fresh.id")
	store := checkpoint.New(path)

	require.NoError(t, store.Init(42, false))
	got, err := store.Read()
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)

	require.ErrorIs(t, store.Init(7, false), checkpoint.ErrExists)

	require.NoError(t, store.Init(7, true))
	got, err = store.Read()
	require.NoError(t, err)
	assert.Equal(t, int64(7), got)

	require.Error(t, store.Init(-1, true))
}
