package app_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/repo-harvester/internal/app"
	"github.com/JakeFAU/repo-harvester/internal/config"
	"github.com/JakeFAU/repo-harvester/internal/vcs"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	dir := t.TempDir()
	cfg.Crawl.CheckpointPath = filepath.Join(dir, "gitdwnld.id")
	cfg.Crawl.AuditLog = filepath.Join(dir, "gitdwnld.log")
	cfg.Crawl.DumpDir = filepath.Join(dir, "logs")
	cfg.Crawl.CloneDir = filepath.Join(dir, "clones")
	return cfg
}

func TestNewAssignsRunID(t *testing.T) {
	a := app.New(testConfig(t), zap.NewNop())
	b := app.New(testConfig(t), zap.NewNop())
	assert.NotEmpty(t, a.GetRunID())
	assert.NotEqual(t, a.GetRunID(), b.GetRunID())
	assert.NotNil(t, a.GetLogger())
	assert.NotNil(t, a.GetRunner())
	a.Close()
}

func TestNewEngine(t *testing.T) {
	cfg := testConfig(t)
	a := app.New(cfg, nil)

	require.NoError(t, a.CheckpointStore().Init(cfg.Crawl.IDLimit, false))
	engine, err := a.NewEngine()
	require.NoError(t, err)

	// The cursor already sits at the limit, so no request is made.
	require.NoError(t, engine.Run(context.Background()))
	assert.Equal(t, cfg.Crawl.IDLimit, engine.Snapshot().Cursor)
	assert.Equal(t, a.GetRunID(), engine.Snapshot().RunID)
}

func TestNewEngineRejectsBadBaseURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.Crawl.BaseURL = "::not a url"
	_, err := app.New(cfg, nil).NewEngine()
	assert.Error(t, err)
}

func TestNewCloner(t *testing.T) {
	a := app.New(testConfig(t), nil)

	c, err := a.NewCloner("")
	require.NoError(t, err)
	assert.Equal(t, vcs.Git, c.Kind())

	c, err = a.NewCloner("hg")
	require.NoError(t, err)
	assert.Equal(t, vcs.Mercurial, c.Kind())

	_, err = a.NewCloner("svn")
	assert.ErrorIs(t, err, vcs.ErrUnsupported)
}

func TestNewSupervisor(t *testing.T) {
	cfg := testConfig(t)
	cfg.Supervisor.PollInterval = 10 * time.Millisecond
	var out bytes.Buffer
	a := app.New(cfg, nil, app.WithOutput(&out))

	_, err := a.NewSupervisor(nil, "")
	assert.Error(t, err)

	sup, err := a.NewSupervisor([]string{"sleep", "5"}, "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = sup.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, sup.Restarts())
}
