package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Norgate-AV/passthru/internal/config"
	"github.com/Norgate-AV/passthru/internal/remote"
	"github.com/Norgate-AV/passthru/internal/testutil"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	t.Parallel()

	dir := testutil.CreateTempDir(t)

	cfg, err := config.Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig(), cfg)
}

func TestLoad_EmptyFileReturnsDefaults(t *testing.T) {
	t.Parallel()

	dir := testutil.CreateTempDir(t)
	path := testutil.WriteFile(t, dir, "config.yaml", "  \n")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig(), cfg)
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	assert.Equal(t, config.DefaultCompanionPath, cfg.CompanionPath)
	assert.Equal(t, 8, cfg.Hook.QueueCapacity)
	assert.Equal(t, 10*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, remote.ResolverExport, cfg.Remote.Resolver)
	assert.Equal(t, 4, cfg.Target.ChildDepth)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Parallel()

	dir := testutil.CreateTempDir(t)
	path := testutil.WriteFile(t, dir, "config.yaml", `
companion_path: C:\tools\companion.dll
pipe_name: \\.\pipe\passthru-ci
hook:
  queue_capacity: 32
remote:
  timeout: 2500ms
  resolver: local
target:
  child_depth: 2
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, `C:\tools\companion.dll`, cfg.CompanionPath)
	assert.Equal(t, `\\.\pipe\passthru-ci`, cfg.PipeName)
	assert.Equal(t, 32, cfg.Hook.QueueCapacity)
	assert.Equal(t, 2500*time.Millisecond, cfg.Remote.Timeout)
	assert.Equal(t, remote.ResolverLocal, cfg.Remote.Resolver)
	assert.Equal(t, 2, cfg.Target.ChildDepth)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	t.Parallel()

	dir := testutil.CreateTempDir(t)
	path := testutil.WriteFile(t, dir, "config.yaml", "hook:\n  queue_capacity: 64\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	want := config.DefaultConfig()
	want.Hook.QueueCapacity = 64
	assert.Equal(t, want, cfg)
}

func TestLoad_InvalidYAML(t *testing.T) {
	t.Parallel()

	dir := testutil.CreateTempDir(t)
	path := testutil.WriteFile(t, dir, "config.yaml", "hook: [unterminated\n")

	_, err := config.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoad_TooLarge(t *testing.T) {
	t.Parallel()

	dir := testutil.CreateTempDir(t)
	path := testutil.WriteFile(t, dir, "config.yaml", "# "+strings.Repeat("x", 1<<20)+"\n")

	_, err := config.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(*config.Config)
		errMsg string
	}{
		{
			name:   "empty companion path",
			modify: func(c *config.Config) { c.CompanionPath = " " },
			errMsg: "companion_path",
		},
		{
			name:   "zero queue capacity",
			modify: func(c *config.Config) { c.Hook.QueueCapacity = 0 },
			errMsg: "hook.queue_capacity",
		},
		{
			name:   "huge queue capacity",
			modify: func(c *config.Config) { c.Hook.QueueCapacity = 5000 },
			errMsg: "hook.queue_capacity",
		},
		{
			name:   "timeout below minimum",
			modify: func(c *config.Config) { c.Remote.Timeout = time.Millisecond },
			errMsg: "remote.timeout",
		},
		{
			name:   "unknown resolver",
			modify: func(c *config.Config) { c.Remote.Resolver = "guess" },
			errMsg: "remote.resolver",
		},
		{
			name:   "negative child depth",
			modify: func(c *config.Config) { c.Target.ChildDepth = -1 },
			errMsg: "target.child_depth",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			tt.modify(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Hook.QueueCapacity = 0
	cfg.Target.ChildDepth = 99

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hook.queue_capacity")
	assert.Contains(t, err.Error(), "target.child_depth")
}

func TestResolveCompanionPath_RelativeToWorkingDirectory(t *testing.T) {
	dir := testutil.CreateTempDir(t)
	t.Chdir(dir)

	wd, err := os.Getwd()
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	path, err := cfg.ResolveCompanionPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, "companion", "passthru_companion.dll"), path)
}

func TestResolveCompanionPath_AbsoluteUnchanged(t *testing.T) {
	t.Parallel()

	abs := filepath.Join(testutil.CreateTempDir(t), "elsewhere.dll")

	cfg := config.DefaultConfig()
	cfg.CompanionPath = abs
	path, err := cfg.ResolveCompanionPath()
	require.NoError(t, err)
	assert.Equal(t, abs, path)
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("LOCALAPPDATA", "/local")
	t.Setenv("APPDATA", "/roaming")
	assert.Equal(t, filepath.Join("/local", "passthru", "config.yaml"), config.DefaultPath())

	t.Setenv("LOCALAPPDATA", "")
	assert.Equal(t, filepath.Join("/roaming", "passthru", "config.yaml"), config.DefaultPath())
}
