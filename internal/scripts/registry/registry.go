// Package registry holds the immutable set of declared scripts. Built once
// from a validated config, then safe for concurrent reads from any component.
package registry

import (
	"fmt"
	"os"
	"time"

	"github.com/gymbridge/gymbridge/internal/config"
)

// Mode is a script's declared execution mode.
type Mode string

const (
	// ModeDiscrete scripts run once per trigger and return one result.
	ModeDiscrete Mode = "discrete"
	// ModeStreaming scripts run indefinitely and publish framed messages.
	ModeStreaming Mode = "streaming"
)

// Function is a named entry point within a discrete script.
type Function struct {
	Name    string
	Display string
}

// Descriptor describes one declared script. Immutable after load.
type Descriptor struct {
	Name      string
	Path      string
	Mode      Mode
	Functions []Function

	// Timeout is the wall-clock limit for discrete runs of this script.
	Timeout time.Duration
}

// Function returns the declared function with the given name.
func (d Descriptor) Function(name string) (Function, bool) {
	for _, fn := range d.Functions {
		if fn.Name == name {
			return fn, true
		}
	}
	return Function{}, false
}

// ResultKey is the app state key a discrete result is written under:
// the script name, or "script.function" for a named function.
func (d Descriptor) ResultKey(function string) string {
	if function == "" {
		return d.Name
	}
	return d.Name + "." + function
}

// Registry is the loaded, immutable script set.
type Registry struct {
	byName map[string]Descriptor
	order  []string
}

// New builds a registry from the declared scripts. The config is expected to
// have passed Validate already; the registry still rejects duplicates and
// unreadable paths so it cannot be constructed in a broken state.
func New(scripts []*config.Script, runtime config.Runtime) (*Registry, error) {
	r := &Registry{
		byName: make(map[string]Descriptor, len(scripts)),
		order:  make([]string, 0, len(scripts)),
	}

	for _, s := range scripts {
		if _, exists := r.byName[s.Name]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateScript, s.Name)
		}

		if _, err := os.Stat(s.Path); err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrUnreadableScript, s.Name, err)
		}

		var mode Mode
		switch s.Type {
		case config.ScriptTypeDiscrete:
			mode = ModeDiscrete
		case config.ScriptTypeStreaming:
			mode = ModeStreaming
		default:
			return nil, fmt.Errorf("%w: script %q type %q", ErrInvalidMode, s.Name, s.Type)
		}

		if mode == ModeStreaming && len(s.Functions) > 0 {
			return nil, fmt.Errorf("%w: %q", ErrFunctionsOnStreaming, s.Name)
		}

		timeout := s.Timeout.AsDuration()
		if timeout <= 0 {
			timeout = runtime.DiscreteTimeout.AsDuration()
		}

		functions := make([]Function, 0, len(s.Functions))
		for _, fn := range s.Functions {
			functions = append(functions, Function{Name: fn.Name, Display: fn.Display})
		}

		r.byName[s.Name] = Descriptor{
			Name:      s.Name,
			Path:      s.Path,
			Mode:      mode,
			Functions: functions,
			Timeout:   timeout,
		}
		r.order = append(r.order, s.Name)
	}

	return r, nil
}

// Lookup returns the descriptor declared under name.
func (r *Registry) Lookup(name string) (Descriptor, error) {
	d, ok := r.byName[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrScriptNotFound, name)
	}
	return d, nil
}

// All returns every descriptor in declaration order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Streaming returns the streaming descriptors in declaration order.
func (r *Registry) Streaming() []Descriptor {
	out := []Descriptor{}
	for _, d := range r.All() {
		if d.Mode == ModeStreaming {
			out = append(out, d)
		}
	}
	return out
}

// Discrete returns the discrete descriptors in declaration order.
func (r *Registry) Discrete() []Descriptor {
	out := []Descriptor{}
	for _, d := range r.All() {
		if d.Mode == ModeDiscrete {
			out = append(out, d)
		}
	}
	return out
}

// Len returns the number of declared scripts.
func (r *Registry) Len() int {
	return len(r.byName)
}
