// Package config holds the domain model for a panel description: the set of
// declared scripts and the layout of widgets that feed the app state.
package config

import (
	"time"
)

// VersionLatest is the most recent supported config schema version.
const VersionLatest = "v1"

// Runtime defaults, applied by the loader when the TOML omits them.
const (
	DefaultInterpreter        = "python3"
	DefaultDiscreteTimeout    = 30 * time.Second
	DefaultStreamGrace        = 3 * time.Second
	DefaultMaxRestartAttempts = 5
	DefaultRestartBackoff     = 500 * time.Millisecond
)

// Slider range defaults, matching the panel's drawn range when unset.
const (
	DefaultSliderMin = -10.0
	DefaultSliderMax = 10.0
)

// Config is the root of the panel description.
type Config struct {
	Version string    `toml:"version"`
	Logging Logging   `toml:"logging"`
	Runtime Runtime   `toml:"runtime"`
	Layout  Layout    `toml:"layout"`
	Scripts []*Script `toml:"scripts"`

	// sourceDir is the directory the config file was loaded from; relative
	// script paths resolve against it.
	sourceDir string
}

// Logging controls the process-wide slog handler.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Runtime configures how script child processes are launched and supervised.
type Runtime struct {
	// Interpreter is the executable used for every declared script.
	Interpreter string `toml:"interpreter"`

	// DiscreteTimeout is the default wall-clock limit for a discrete run.
	DiscreteTimeout Duration `toml:"discrete_timeout"`

	// StreamGrace is how long a streaming child gets between SIGTERM and SIGKILL.
	StreamGrace Duration `toml:"stream_grace"`

	// MaxRestartAttempts bounds automatic restarts of a crashed streaming script.
	MaxRestartAttempts int `toml:"max_restart_attempts"`

	// RestartBackoff is the initial restart delay; it doubles per attempt.
	RestartBackoff Duration `toml:"restart_backoff"`
}

// ScriptType selects the execution mode for a script.
type ScriptType string

const (
	// ScriptTypeDiscrete runs once per trigger and returns one JSON result.
	ScriptTypeDiscrete ScriptType = "discrete"
	// ScriptTypeStreaming runs for the lifetime of the panel, publishing frames.
	ScriptTypeStreaming ScriptType = "streaming"
)

// Script declares one executable script file.
type Script struct {
	Name string     `toml:"name"`
	Path string     `toml:"path"`
	Type ScriptType `toml:"type"`

	// Timeout overrides Runtime.DiscreteTimeout for this script when set.
	Timeout Duration `toml:"timeout"`

	// Functions lists named entry points within a discrete script, shown as
	// individual trigger buttons.
	Functions []*Function `toml:"functions"`
}

// Function is a named entry point within a discrete script.
type Function struct {
	Name    string `toml:"name"`
	Display string `toml:"display"`
}

// Layout describes the widget surface around the 3D scene. The core consumes
// only the stable string ids; drawing is the rendering layer's concern.
type Layout struct {
	Title       string        `toml:"title"`
	Show3DScene bool          `toml:"show_3d_scene"`
	LeftPanel   Panel         `toml:"left_panel"`
	RightPanel  Panel         `toml:"right_panel"`
	Sliders     []*Slider     `toml:"sliders"`
	InputFields []*InputField `toml:"input_fields"`
	Plots       []*Plot       `toml:"plots"`
	Table       Table         `toml:"table"`
}

// Panel configures one side panel and its tabs.
type Panel struct {
	Enabled      bool    `toml:"enabled"`
	DefaultWidth float64 `toml:"default_width"`
	Tabs         []*Tab  `toml:"tabs"`
}

// Tab is one selectable tab within a panel.
type Tab struct {
	ID    string `toml:"id"`
	Label string `toml:"label"`
}

// Slider is a numeric control; its id is an app state key.
type Slider struct {
	ID      string  `toml:"id"`
	Label   string  `toml:"label"`
	Min     float64 `toml:"min"`
	Max     float64 `toml:"max"`
	Default float64 `toml:"default"`
	Tab     string  `toml:"tab"`
}

// InputField is a free text control; its id is an app state key.
type InputField struct {
	ID    string `toml:"id"`
	Label string `toml:"label"`
	Tab   string `toml:"tab"`
}

// Plot subscribes to one stream id.
type Plot struct {
	Title    string `toml:"title"`
	StreamID string `toml:"stream_id"`
	Tab      string `toml:"tab"`
}

// Table subscribes to one stream id and renders rows.
type Table struct {
	Tab      string `toml:"tab"`
	StreamID string `toml:"stream_id"`
}

// SourceDir returns the directory the config file was loaded from, or "" when
// the config was built from bytes.
func (c *Config) SourceDir() string {
	return c.sourceDir
}

// FindScript returns the script declared under name, or nil.
func (c *Config) FindScript(name string) *Script {
	for _, s := range c.Scripts {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// StreamIDs returns every stream id the layout subscribes to, in declaration order.
func (c *Config) StreamIDs() []string {
	ids := make([]string, 0, len(c.Layout.Plots)+1)
	for _, p := range c.Layout.Plots {
		ids = append(ids, p.StreamID)
	}
	if c.Layout.Table.StreamID != "" {
		ids = append(ids, c.Layout.Table.StreamID)
	}
	return ids
}
