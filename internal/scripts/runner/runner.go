// Package runner spawns and supervises script child processes: one-shot
// discrete runs that return a JSON result, and long-lived streaming
// processes that publish frames to a bound endpoint.
//
// Every invocation receives the serialized app state snapshot on stdin. All
// child output is captured, never inherited by the parent's console.
package runner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/gymbridge/gymbridge/internal/appstate"
	"github.com/gymbridge/gymbridge/internal/metrics"
	"github.com/gymbridge/gymbridge/internal/scripts/registry"
)

// StreamAddrEnv is the environment variable carrying the stream endpoint
// address to a streaming child process.
const StreamAddrEnv = "GYMBRIDGE_STREAM_ADDR"

// functionFlag selects a named entry point within a discrete script.
const functionFlag = "--function"

// maxCapturedOutput bounds captured stdout/stderr per discrete run.
const maxCapturedOutput = 10 * 1024 * 1024

// Runner launches script processes with one configured interpreter.
type Runner struct {
	interpreter string
	grace       time.Duration
	logger      *slog.Logger
}

// Option is a functional option for configuring a Runner.
type Option func(*Runner)

// WithLogger sets a custom logger for the Runner instance.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithGrace sets the SIGTERM-to-SIGKILL grace period for child teardown.
func WithGrace(grace time.Duration) Option {
	return func(r *Runner) {
		r.grace = grace
	}
}

// New creates a Runner that launches scripts with the given interpreter.
func New(interpreter string, opts ...Option) *Runner {
	r := &Runner{
		interpreter: interpreter,
		grace:       3 * time.Second,
		logger:      slog.Default().WithGroup("runner.Runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunDiscrete executes one discrete run: serialize the snapshot, spawn the
// script, feed the payload on stdin, wait for exit, parse the last non-empty
// stdout line as JSON. The descriptor's timeout bounds the run; on expiry
// the process is killed and ErrTimeout returned.
func (r *Runner) RunDiscrete(
	ctx context.Context,
	desc registry.Descriptor,
	function string,
	snap appstate.Snapshot,
) (appstate.Value, error) {
	if function != "" {
		if _, ok := desc.Function(function); !ok {
			return nil, fmt.Errorf("%w: %q in script %q", ErrUnknownFunction, function, desc.Name)
		}
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize app state: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, desc.Timeout)
	defer cancel()

	args := []string{desc.Path}
	if function != "" {
		args = append(args, functionFlag, function)
	}

	cmd := exec.CommandContext(runCtx, r.interpreter, args...)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = newLimitedWriter(&stdout, maxCapturedOutput)
	cmd.Stderr = newLimitedWriter(&stderr, maxCapturedOutput)

	// Ask nicely first; WaitDelay escalates to SIGKILL.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = r.grace

	inv := newInvocation(desc, function, r.logger.Handler())
	inv.Logger().Info("executing discrete script", "path", desc.Path, "timeout", desc.Timeout)

	if err := cmd.Start(); err != nil {
		metrics.DiscreteRuns.WithLabelValues(desc.Name, "spawn_failed").Inc()
		return nil, fmt.Errorf("%w: %w", ErrSpawnFailed, err)
	}

	waitErr := cmd.Wait()
	r.logChildStderr(inv, stderr.Bytes())

	if runCtx.Err() == context.DeadlineExceeded {
		metrics.DiscreteRuns.WithLabelValues(desc.Name, "timeout").Inc()
		inv.Logger().Error("discrete run timed out", "timeout", desc.Timeout)
		return nil, fmt.Errorf("%w after %s", ErrTimeout, desc.Timeout)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code := exitErr.ExitCode()
			metrics.DiscreteRuns.WithLabelValues(desc.Name, "nonzero_exit").Inc()
			inv.Logger().Error("discrete run failed", "exit_code", code)
			return nil, &ExitError{Code: code}
		}
		metrics.DiscreteRuns.WithLabelValues(desc.Name, "spawn_failed").Inc()
		return nil, fmt.Errorf("%w: %w", ErrSpawnFailed, waitErr)
	}

	result, err := parseResult(stdout.Bytes())
	if err != nil {
		metrics.DiscreteRuns.WithLabelValues(desc.Name, "malformed_output").Inc()
		inv.Logger().Error("discrete run produced malformed output", "error", err)
		return nil, err
	}

	metrics.DiscreteRuns.WithLabelValues(desc.Name, "ok").Inc()
	inv.Logger().Info("discrete run completed", "duration", time.Since(inv.StartedAt))
	return result, nil
}

// parseResult extracts the script's JSON result from captured stdout.
// Scripts may print progress lines first; only the last non-empty line is
// the result.
func parseResult(stdout []byte) (appstate.Value, error) {
	lines := strings.Split(string(stdout), "\n")
	var last string
	for i := len(lines) - 1; i >= 0; i-- {
		if trimmed := strings.TrimSpace(lines[i]); trimmed != "" {
			last = trimmed
			break
		}
	}
	if last == "" {
		return nil, fmt.Errorf("%w: empty output", ErrMalformedOutput)
	}

	var value appstate.Value
	if err := json.Unmarshal([]byte(last), &value); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedOutput, err)
	}
	return value, nil
}

// logChildStderr forwards the child's captured stderr line by line.
func (r *Runner) logChildStderr(inv *Invocation, stderr []byte) {
	scanner := bufio.NewScanner(bytes.NewReader(stderr))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			inv.Logger().Warn("script stderr", "line", line)
		}
	}
}

// limitedWriter discards writes past max so a chatty script cannot grow the
// parent's memory without bound.
type limitedWriter struct {
	buf     *bytes.Buffer
	max     int
	written int
}

func newLimitedWriter(buf *bytes.Buffer, max int) *limitedWriter {
	return &limitedWriter{buf: buf, max: max}
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	remaining := w.max - w.written
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		w.buf.Write(p[:remaining])
		w.written = w.max
		return len(p), nil
	}
	w.buf.Write(p)
	w.written += len(p)
	return len(p), nil
}
