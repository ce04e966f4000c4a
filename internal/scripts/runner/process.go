package runner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/gymbridge/gymbridge/internal/appstate"
	"github.com/gymbridge/gymbridge/internal/scripts/registry"
)

// Process is a live streaming script child. Owned by the scheduler for the
// lifetime of the invocation; Stop guarantees the OS process is gone.
type Process struct {
	inv   *Invocation
	cmd   *exec.Cmd
	grace time.Duration

	done     chan struct{}
	waitErr  error
	stopOnce sync.Once
	stopped  bool
	mu       sync.Mutex
}

// StartStreaming spawns a streaming script. The snapshot is written to the
// child's stdin and stdin is closed; the stream endpoint address is passed
// in the environment. The endpoint must already be bound by the caller:
// bind-then-spawn ordering is what keeps early frames from being lost.
func (r *Runner) StartStreaming(
	ctx context.Context,
	desc registry.Descriptor,
	snap appstate.Snapshot,
	streamAddr string,
) (*Process, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize app state: %w", err)
	}

	cmd := exec.Command(r.interpreter, desc.Path)
	cmd.Env = append(os.Environ(), StreamAddrEnv+"="+streamAddr)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpawnFailed, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpawnFailed, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpawnFailed, err)
	}

	inv := newInvocation(desc, "", r.logger.Handler())
	inv.Logger().Info("starting streaming script",
		"path", desc.Path,
		"stream_addr", streamAddr,
	)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpawnFailed, err)
	}

	// Hand the child its initial snapshot, then close stdin so scripts that
	// read to EOF do not hang.
	go func() {
		if _, err := stdin.Write(payload); err != nil {
			inv.Logger().Warn("failed to write snapshot to script stdin", "error", err)
		}
		_ = stdin.Close()
	}()

	go forwardLines(stdout, func(line string) {
		inv.Logger().Debug("script output", "line", line)
	})
	go forwardLines(stderr, func(line string) {
		inv.Logger().Warn("script stderr", "line", line)
	})

	p := &Process{
		inv:   inv,
		cmd:   cmd,
		grace: r.grace,
		done:  make(chan struct{}),
	}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()

	return p, nil
}

// Invocation returns the invocation record for this process.
func (p *Process) Invocation() *Invocation {
	return p.inv
}

// Pid returns the OS process id of the child.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Done is closed when the child has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the child exits and returns its wait error.
func (p *Process) Wait() error {
	<-p.done
	return p.waitErr
}

// Stopped reports whether Stop was called, distinguishing a deliberate
// shutdown from an unexpected exit.
func (p *Process) Stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// Stop terminates the child: SIGTERM, a grace period, then SIGKILL. It
// blocks until the process is gone and is safe to call more than once.
func (p *Process) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	p.stopOnce.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}

		p.inv.Logger().Debug("stopping streaming script", "pid", p.Pid())
		// The process may exit between the check above and here; signal
		// errors on an already-dead process are expected.
		_ = p.cmd.Process.Signal(syscall.SIGTERM)

		select {
		case <-p.done:
		case <-time.After(p.grace):
			p.inv.Logger().Warn("script ignored SIGTERM, killing", "pid", p.Pid())
			_ = p.cmd.Process.Kill()
			<-p.done
		}
	})
	<-p.done
}

// forwardLines pumps a pipe line by line into fn until EOF.
func forwardLines(pipe io.Reader, fn func(string)) {
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := string(bytes.TrimSpace(scanner.Bytes())); line != "" {
			fn(line)
		}
	}
}
