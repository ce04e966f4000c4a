// Runner owns script execution: it accepts triggers from the UI boundary,
// runs discrete scripts to completion, supervises streaming children with
// bounded restart backoff, and writes results into the app state store. It
// integrates with the supervisor package for lifecycle management.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gymbridge/gymbridge/internal/appstate"
	"github.com/gymbridge/gymbridge/internal/metrics"
	"github.com/gymbridge/gymbridge/internal/scripts/registry"
	"github.com/gymbridge/gymbridge/internal/scripts/runner"
	"github.com/gymbridge/gymbridge/internal/scripts/stream"
	"github.com/gymbridge/gymbridge/internal/server/finitestate"
	"github.com/robbyt/go-supervisor/supervisor"
)

// Interface guard: ensure Runner implements required interfaces
var (
	_ supervisor.Runnable  = (*Runner)(nil)
	_ supervisor.Stateable = (*Runner)(nil)
)

const eventBufferSize = 64

// entry tracks one executable unit: a script, or one function of a script.
// Its FSM is the single-flight guard; a trigger only proceeds if the machine
// accepts the transition into a running state.
type entry struct {
	key      string
	desc     registry.Descriptor
	function string
	fsm      finitestate.Machine

	// set only while a streaming session is live
	cancelStream context.CancelFunc
	session      uint64
}

type Runner struct {
	logger   *slog.Logger
	fsm      finitestate.Machine
	store    *appstate.Store
	hub      *stream.Hub
	launcher *runner.Runner
	policy   restartPolicy

	registry   *registry.Registry
	registryMu sync.RWMutex

	entries   map[string]*entry
	entriesMu sync.Mutex

	events chan Event

	wg sync.WaitGroup

	parentCtx   context.Context
	localCtx    context.Context
	localCancel context.CancelFunc
}

// NewRunner creates a scheduler over the given registry, store, and hub.
func NewRunner(
	reg *registry.Registry,
	store *appstate.Store,
	hub *stream.Hub,
	launcher *runner.Runner,
	opts ...Option,
) (*Runner, error) {
	if reg == nil {
		return nil, errors.New("registry cannot be nil")
	}
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if hub == nil {
		return nil, errors.New("hub cannot be nil")
	}
	if launcher == nil {
		return nil, errors.New("launcher cannot be nil")
	}

	r := &Runner{
		logger:    slog.Default().WithGroup("scheduler.Runner"),
		store:     store,
		hub:       hub,
		launcher:  launcher,
		policy:    defaultRestartPolicy(),
		registry:  reg,
		entries:   make(map[string]*entry),
		events:    make(chan Event, eventBufferSize),
		parentCtx: context.Background(),
	}

	for _, opt := range opts {
		opt(r)
	}

	fsm, err := finitestate.New(r.logger.WithGroup("fsm").Handler())
	if err != nil {
		return nil, fmt.Errorf("failed to create state machine: %w", err)
	}
	r.fsm = fsm

	return r, nil
}

func (r *Runner) String() string {
	return "scheduler.Runner"
}

// Run blocks until the context is canceled, then stops every live child
// process before returning.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.fsm.Transition(finitestate.StatusBooting); err != nil {
		return fmt.Errorf("failed to transition to booting state: %w", err)
	}

	r.localCtx, r.localCancel = context.WithCancel(ctx)

	if err := r.fsm.Transition(finitestate.StatusRunning); err != nil {
		return fmt.Errorf("failed to transition to running state: %w", err)
	}
	r.logger.Debug("Scheduler running", "scripts", r.reg().Len())

	// Streaming scripts run for the lifetime of the application, so their
	// supervised sessions start here rather than waiting for a trigger.
	for _, desc := range r.reg().Streaming() {
		if err := r.startStream(desc); err != nil {
			r.logger.Error("failed to start streaming script",
				"script", desc.Name, "error", err)
		}
	}

	select {
	case <-r.localCtx.Done():
	case <-r.parentCtx.Done():
	}

	if err := r.fsm.Transition(finitestate.StatusStopping); err != nil {
		return fmt.Errorf("failed to transition to stopping state: %w", err)
	}

	// Canceling localCtx tears down streaming sessions; in-flight discrete
	// runs see the cancellation through their own contexts.
	r.localCancel()
	r.wg.Wait()

	if err := r.fsm.Transition(finitestate.StatusStopped); err != nil {
		r.logger.Error("Failed to transition to stopped state", "error", err)
	}
	r.logger.Debug("Scheduler stopped")
	return nil
}

// Stop signals Run to shut down.
func (r *Runner) Stop() {
	r.logger.Debug("Stopping scheduler")
	if r.localCancel != nil {
		r.localCancel()
	}
}

// Events returns the scheduler's event channel. Delivery is best-effort: a
// consumer that falls behind misses events rather than stalling execution.
func (r *Runner) Events() <-chan Event {
	return r.events
}

// Trigger starts the named script. For a discrete script (optionally a named
// function of it) one run is launched; for a streaming script a supervised
// streaming session begins. A trigger for a unit that is already running is
// rejected with ErrAlreadyRunning and no second process is spawned.
func (r *Runner) Trigger(name, function string) error {
	if !r.IsRunning() {
		return ErrNotRunning
	}

	desc, err := r.reg().Lookup(name)
	if err != nil {
		return err
	}

	if desc.Mode == registry.ModeStreaming {
		if function != "" {
			return fmt.Errorf("%w: streaming script %q has no functions", runner.ErrUnknownFunction, name)
		}
		return r.startStream(desc)
	}

	if function != "" {
		if _, ok := desc.Function(function); !ok {
			return fmt.Errorf("%w: %q in script %q", runner.ErrUnknownFunction, function, name)
		}
	}

	key := desc.ResultKey(function)
	ent, err := r.claim(key, desc, function, finitestate.StatusScriptRunning)
	if err != nil {
		return err
	}

	r.wg.Add(1)
	go r.runDiscrete(ent)
	return nil
}

// Retry re-runs a failed unit. Key is the result key ("script" or
// "script.function"). The restart budget of a streaming script starts fresh.
func (r *Runner) Retry(key string) error {
	if !r.IsRunning() {
		return ErrNotRunning
	}

	r.entriesMu.Lock()
	ent, ok := r.entries[key]
	r.entriesMu.Unlock()
	if !ok || ent.fsm.GetState() != finitestate.StatusFailed {
		return fmt.Errorf("%w: %q", ErrNotFailed, key)
	}

	return r.Trigger(ent.desc.Name, ent.function)
}

// StopStream deliberately stops a streaming script. The child is terminated
// and, unlike a crash, not restarted.
func (r *Runner) StopStream(name string) error {
	r.entriesMu.Lock()
	ent, ok := r.entries[name]
	var cancel context.CancelFunc
	if ok {
		cancel = ent.cancelStream
	}
	r.entriesMu.Unlock()

	// A live session has a cancel func even while it is waiting out a restart
	// backoff, so a stop during the backoff window still lands.
	if !ok || cancel == nil {
		return fmt.Errorf("%w: %q", ErrNotStreaming, name)
	}
	cancel()
	return nil
}

// ReloadRegistry swaps the script registry. Running invocations keep the
// descriptors they started with; new triggers see the new registry.
func (r *Runner) ReloadRegistry(reg *registry.Registry) {
	r.registryMu.Lock()
	r.registry = reg
	r.registryMu.Unlock()
	r.logger.Info("script registry reloaded", "scripts", reg.Len())
}

func (r *Runner) reg() *registry.Registry {
	r.registryMu.RLock()
	defer r.registryMu.RUnlock()
	return r.registry
}

// claim looks up or creates the entry for key and attempts the transition
// into the requested running state. The FSM rejecting the transition is what
// makes concurrent triggers single-flight.
func (r *Runner) claim(
	key string,
	desc registry.Descriptor,
	function string,
	target string,
) (*entry, error) {
	r.entriesMu.Lock()
	defer r.entriesMu.Unlock()

	ent, ok := r.entries[key]
	if !ok {
		fsm, err := finitestate.NewScript(r.logger.WithGroup("fsm").Handler())
		if err != nil {
			return nil, fmt.Errorf("failed to create script state machine: %w", err)
		}
		ent = &entry{key: key, desc: desc, function: function, fsm: fsm}
		r.entries[key] = ent
	}

	// Refresh the descriptor so a reloaded registry takes effect on the
	// next trigger.
	ent.desc = desc

	if !ent.fsm.TransitionBool(target) {
		return nil, fmt.Errorf("%w: %q", ErrAlreadyRunning, key)
	}
	return ent, nil
}

func (r *Runner) runDiscrete(ent *entry) {
	defer r.wg.Done()

	snap := r.store.Snapshot()
	result, err := r.launcher.RunDiscrete(r.localCtx, ent.desc, ent.function, snap)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Shutdown, not a script failure.
			ent.fsm.TransitionBool(finitestate.StatusIdle)
			return
		}
		r.logger.Error("discrete run failed",
			"script", ent.desc.Name, "key", ent.key, "error", err)
		ent.fsm.TransitionBool(finitestate.StatusFailed)
		r.emit(Event{
			Type: EventFailed, Script: ent.desc.Name, Key: ent.key,
			Err: err, Time: time.Now(),
		})
		return
	}

	r.store.Set(ent.key, result)
	ent.fsm.TransitionBool(finitestate.StatusIdle)
	r.emit(Event{
		Type: EventResult, Script: ent.desc.Name, Key: ent.key,
		Result: result, Time: time.Now(),
	})
}

func (r *Runner) startStream(desc registry.Descriptor) error {
	ent, err := r.claim(desc.Name, desc, "", finitestate.StatusStreaming)
	if err != nil {
		return err
	}

	streamCtx, cancel := context.WithCancel(r.localCtx)
	r.entriesMu.Lock()
	ent.session++
	session := ent.session
	ent.cancelStream = cancel
	r.entriesMu.Unlock()

	r.wg.Add(1)
	go r.superviseStream(streamCtx, ent, session)
	return nil
}

// superviseStream owns one streaming session: bind the endpoint, spawn the
// child, and keep it alive. The endpoint is always bound before the child is
// spawned so the first frame has somewhere to land. A child that exits on its
// own goes to Failed and is restarted with doubling backoff until the attempt
// budget runs out; staying up past the stability window resets the budget.
func (r *Runner) superviseStream(ctx context.Context, ent *entry, session uint64) {
	defer r.wg.Done()
	defer func() {
		r.entriesMu.Lock()
		// A newer session may already own the entry.
		if ent.session == session {
			ent.cancelStream = nil
		}
		r.entriesMu.Unlock()
	}()

	attempts := 0
	for {
		ep, err := stream.NewEndpoint(r.hub, ent.desc.Name, r.logger)
		if err != nil {
			r.failStream(ent, err)
			return
		}

		proc, err := r.launcher.StartStreaming(ctx, ent.desc, r.store.Snapshot(), ep.Addr())
		if err != nil {
			_ = ep.Close()
			r.failStream(ent, err)
			return
		}

		eventType := EventStreamStarted
		if attempts > 0 {
			eventType = EventStreamRestarted
		}
		r.emit(Event{
			Type: eventType, Script: ent.desc.Name, Key: ent.key, Time: time.Now(),
		})

		startedAt := time.Now()
		select {
		case <-ctx.Done():
			// Deliberate stop: ours via StopStream, or scheduler shutdown.
			proc.Stop()
			_ = ep.Close()
			ent.fsm.TransitionBool(finitestate.StatusScriptStopped)
			r.emit(Event{
				Type: EventStreamStopped, Script: ent.desc.Name, Key: ent.key,
				Time: time.Now(),
			})
			return
		case <-proc.Done():
		}
		_ = ep.Close()

		// The child died on its own; the unit is failed until a relaunch
		// actually happens.
		ent.fsm.TransitionBool(finitestate.StatusFailed)

		waitErr := proc.Wait()
		if time.Since(startedAt) >= r.policy.stabilityWindow {
			attempts = 0
		}
		attempts++

		if attempts > r.policy.maxAttempts {
			r.logger.Error("streaming script exhausted its restart budget",
				"script", ent.desc.Name, "attempts", attempts-1, "error", waitErr)
			r.failStream(ent, fmt.Errorf("stream exited %d times, giving up: %w",
				attempts-1, waitErr))
			return
		}
		metrics.StreamRestarts.WithLabelValues(ent.desc.Name).Inc()

		delay := r.policy.delay(attempts)
		r.logger.Warn("streaming script exited, restarting",
			"script", ent.desc.Name,
			"attempt", attempts,
			"delay", delay,
			"error", waitErr,
		)
		select {
		case <-ctx.Done():
			// Shut down or deliberately stopped mid-backoff; the unit stays
			// Failed and the child is already gone.
			return
		case <-time.After(delay):
		}
		if !ent.fsm.TransitionBool(finitestate.StatusStreaming) {
			// A retry claimed the unit during the backoff; a newer session
			// owns it now.
			return
		}
	}
}

func (r *Runner) failStream(ent *entry, err error) {
	ent.fsm.TransitionBool(finitestate.StatusFailed)
	r.emit(Event{
		Type: EventFailed, Script: ent.desc.Name, Key: ent.key,
		Err: err, Time: time.Now(),
	})
}

func (r *Runner) emit(evt Event) {
	select {
	case r.events <- evt:
	default:
		r.logger.Warn("event channel full, dropping event",
			"type", evt.Type, "key", evt.Key)
	}
}
