package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gymbridge/gymbridge/internal/config"
	"github.com/gymbridge/gymbridge/internal/server/finitestate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const panelTOML = `
version = "v1"

[runtime]
interpreter = "sh"
discrete_timeout = "5s"

[layout]
title = "Bench"

[[layout.sliders]]
id = "frequency"
label = "Frequency"
min = 0.5
max = 20.0
default = 1.0

[[layout.input_fields]]
id = "comment"
label = "Comment"

[[scripts]]
name = "echo"
path = "echo.sh"
type = "discrete"
`

// writePanel writes a config plus its scripts and loads it.
func writePanel(t *testing.T, toml string) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "echo.sh"), []byte("cat\n"), 0o755))
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(toml), 0o644))

	cfg, err := config.NewConfig(path)
	require.NoError(t, err)
	return cfg, path
}

// startCore builds a core and runs its runnables for the test's duration.
func startCore(t *testing.T, cfg *config.Config, opts ...Option) *Core {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	c, err := New(cfg, append([]Option{WithParentContext(ctx)}, opts...)...)
	require.NoError(t, err)

	for _, r := range c.Runnables() {
		go func() { assert.NoError(t, r.Run(ctx)) }()
	}
	return c
}

func TestNew_SeedsWidgetDefaults(t *testing.T) {
	t.Parallel()
	cfg, _ := writePanel(t, panelTOML)
	c, err := New(cfg)
	require.NoError(t, err)

	freq, ok := c.Get("frequency")
	require.True(t, ok)
	assert.Equal(t, 1.0, freq)

	comment, ok := c.Get("comment")
	require.True(t, ok)
	assert.Equal(t, "", comment)

	snap := c.CurrentState()
	assert.Contains(t, snap, "frequency")
	assert.Contains(t, snap, "comment")
}

func TestTrigger_ResultVisibleThroughFacade(t *testing.T) {
	t.Parallel()
	cfg, _ := writePanel(t, panelTOML)
	c := startCore(t, cfg)

	c.Set("frequency", 2.0)

	// The echo script reflects its stdin snapshot back as its result.
	require.Eventually(t, func() bool {
		return c.Trigger("echo", "") == nil
	}, 5*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		value, ok := c.Get("echo")
		if !ok {
			return false
		}
		result, ok := value.(map[string]any)
		return ok && result["frequency"] == 2.0
	}, 10*time.Second, 10*time.Millisecond)

	assert.Equal(t, finitestate.StatusIdle, c.ScriptState("echo"))
}

func TestScriptStates_Facade(t *testing.T) {
	t.Parallel()
	cfg, _ := writePanel(t, panelTOML)
	c := startCore(t, cfg)

	assert.Equal(t, map[string]string{
		"echo": finitestate.StatusIdle,
	}, c.ScriptStates())
}

func TestWatchConfig_LiveReload(t *testing.T) {
	t.Parallel()
	cfg, path := writePanel(t, panelTOML)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	c, err := New(cfg, WithParentContext(ctx))
	require.NoError(t, err)
	require.NoError(t, c.WatchConfig(path))

	for _, r := range c.Runnables() {
		go func() { assert.NoError(t, r.Run(ctx)) }()
	}
	require.Eventually(t, c.watcher.IsRunning, 5*time.Second, 10*time.Millisecond)

	// The operator's change survives the reload.
	c.Set("frequency", 7.5)

	updated := panelTOML + `
[[layout.sliders]]
id = "gain"
label = "Gain"
min = 0.0
max = 1.0
default = 0.25

[[scripts]]
name = "extra"
path = "echo.sh"
type = "discrete"
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	assert.Eventually(t, func() bool {
		_, ok := c.Get("gain")
		return ok
	}, 10*time.Second, 50*time.Millisecond, "new slider key should be seeded on reload")

	freq, ok := c.Get("frequency")
	require.True(t, ok)
	assert.Equal(t, 7.5, freq, "reload must not clobber operator values")

	// The reloaded registry knows the new script.
	assert.Eventually(t, func() bool {
		return c.Trigger("extra", "") == nil
	}, 10*time.Second, 50*time.Millisecond)
}

func TestNew_NilConfig(t *testing.T) {
	t.Parallel()
	_, err := New(nil)
	require.Error(t, err)
}

func TestNew_BadScriptPath(t *testing.T) {
	t.Parallel()
	cfg, _ := writePanel(t, panelTOML)
	cfg.Scripts[0].Path = filepath.Join(t.TempDir(), "missing.sh")

	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, fmt.Sprint(err), "registry")
}
