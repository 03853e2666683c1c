package process

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requirePosix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
}

func quietRunner(opts ...Option) *Runner {
	return NewRunner(append([]Option{WithOutput(io.Discard, io.Discard)}, opts...)...)
}

func TestRunSyncOrdersStdoutBeforeStderr(t *testing.T) {
	t.Parallel()
	requirePosix(t)

	out, code, err := quietRunner().RunSync(context.Background(),
		Shell("echo err-first 1>&2; echo out-second; exit 3"))
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.Equal(t, "out-second\nerr-first\n", string(out))
}

func TestRunSyncLargeOutput(t *testing.T) {
	t.Parallel()
	requirePosix(t)
	if _, err := exec.LookPath("head"); err != nil {
		t.Skip("head not available")
	}

	const size = 4 << 20
	out, code, err := quietRunner().RunSync(context.Background(),
		Args("head", "-c", "4194304", "/dev/zero"))
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Len(t, out, size)
}

func TestRunSyncRemovesSpoolFiles(t *testing.T) {
	t.Parallel()
	requirePosix(t)

	dir := t.TempDir()
	_, _, err := quietRunner(WithTempDir(dir)).RunSync(context.Background(), Shell("echo spooled"))
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunSyncMissingExecutable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, code, err := quietRunner(WithTempDir(dir)).RunSync(context.Background(),
		Args("definitely-not-a-real-binary-7f3a"))
	require.Error(t, err)
	assert.Equal(t, -1, code)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "spool files are removed on failure too")
}

func TestRunSyncEmptyCommand(t *testing.T) {
	t.Parallel()

	_, _, err := quietRunner().RunSync(context.Background(), Command{})
	require.Error(t, err)
}

func TestStartReportsLiveness(t *testing.T) {
	t.Parallel()
	requirePosix(t)

	h, err := quietRunner().Start(Args("/bin/sh", "-c", "sleep 0.3; exit 4"))
	require.NoError(t, err)
	assert.True(t, IsRunning(h))
	assert.Equal(t, -1, h.ExitCode())
	assert.Positive(t, h.PID())

	require.Eventually(t, func() bool { return !IsRunning(h) }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 4, h.ExitCode())
	assert.NoError(t, h.Err())
}

func TestSignalDeathIsNotRunning(t *testing.T) {
	t.Parallel()
	requirePosix(t)

	h, err := quietRunner().Start(Args("/bin/sh", "-c", "kill -9 $$"))
	require.NoError(t, err)

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("child did not terminate")
	}
	assert.False(t, IsRunning(h))
	assert.Equal(t, -1, h.ExitCode())
}

func TestIsRunningNilHandle(t *testing.T) {
	t.Parallel()

	assert.False(t, IsRunning(nil))
}

func TestStartInheritsRunnerStreams(t *testing.T) {
	t.Parallel()
	requirePosix(t)

	var out strings.Builder
	h, err := NewRunner(WithOutput(&out, io.Discard)).Start(Args("/bin/sh", "-c", "echo inherited"))
	require.NoError(t, err)
	<-h.Done()
	assert.Equal(t, "inherited\n", out.String())
}

func TestStartLoggedAppendsOutput(t *testing.T) {
	t.Parallel()
	requirePosix(t)

	path := filepath.Join(t.TempDir(), "job.log")
	r := quietRunner()
	for i := 0; i < 2; i++ {
		h, err := r.StartLogged(path, "echo", "hello")
		require.NoError(t, err)
		assert.Equal(t, path, h.LogPath())
		<-h.Done()
	}

	// #nosec G304 -- test reads from the controlled temp directory.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "hello"))
}

func TestStartLoggedAvoidsHeldLog(t *testing.T) {
	t.Parallel()
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skip("advisory locks exercised on linux and darwin")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "job.log")
	r := quietRunner()

	first, err := r.StartLogged(path, "sleep", "1")
	require.NoError(t, err)
	second, err := r.StartLogged(path, "echo", "second")
	require.NoError(t, err)

	assert.Equal(t, path, first.LogPath())
	assert.Equal(t, filepath.Join(dir, "job1.log"), second.LogPath())
	<-second.Done()
	<-first.Done()
}
