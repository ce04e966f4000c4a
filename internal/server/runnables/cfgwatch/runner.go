// Runner watches the config file on disk and re-reads it when it changes.
// A reload that fails validation is logged and skipped: the previous config
// stays live, so a half-saved edit never takes the panel down. Valid configs
// are broadcast to subscribers.
package cfgwatch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gymbridge/gymbridge/internal/config"
	"github.com/gymbridge/gymbridge/internal/server/finitestate"
	"github.com/robbyt/go-supervisor/supervisor"
)

// Interface guard: ensure Runner implements required interfaces
var (
	_ supervisor.Runnable  = (*Runner)(nil)
	_ supervisor.Stateable = (*Runner)(nil)
)

// DefaultDebounce coalesces the burst of filesystem events most editors emit
// for a single save.
const DefaultDebounce = 250 * time.Millisecond

type Runner struct {
	logger     *slog.Logger
	fsm        finitestate.Machine
	configPath string
	debounce   time.Duration

	current   *config.Config
	currentMu sync.RWMutex

	subscribers       sync.Map
	subscriberCounter atomic.Uint64

	parentCtx   context.Context
	localCtx    context.Context
	localCancel context.CancelFunc
}

// NewRunner creates a watcher for the given config file. The initial config
// must already have loaded; it seeds the broadcast state.
func NewRunner(configPath string, initial *config.Config, opts ...Option) (*Runner, error) {
	if configPath == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}

	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	r := &Runner{
		logger:     slog.Default().WithGroup("cfgwatch.Runner"),
		configPath: absPath,
		debounce:   DefaultDebounce,
		current:    initial,
		parentCtx:  context.Background(),
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
	return "cfgwatch.Runner"
}

// Run watches the config file's directory until the context is canceled.
// Watching the directory rather than the file survives the rename-and-replace
// dance editors and atomic writers do.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.fsm.Transition(finitestate.StatusBooting); err != nil {
		return fmt.Errorf("failed to transition to booting state: %w", err)
	}

	r.localCtx, r.localCancel = context.WithCancel(ctx)
	defer r.localCancel()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		if stateErr := r.fsm.Transition(finitestate.StatusError); stateErr != nil {
			return fmt.Errorf("failed to transition to error state: %w", stateErr)
		}
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(r.configPath)); err != nil {
		if stateErr := r.fsm.Transition(finitestate.StatusError); stateErr != nil {
			return fmt.Errorf("failed to transition to error state: %w", stateErr)
		}
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	if err := r.fsm.Transition(finitestate.StatusRunning); err != nil {
		return fmt.Errorf("failed to transition to running state: %w", err)
	}
	r.logger.Debug("Watching config file", "path", r.configPath)

	var debounce *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-r.localCtx.Done():
			return r.shutdown()
		case <-r.parentCtx.Done():
			return r.shutdown()

		case event, ok := <-watcher.Events:
			if !ok {
				return r.shutdown()
			}
			if !r.relevant(event) {
				continue
			}
			r.logger.Debug("config file event", "op", event.Op.String(), "name", event.Name)
			if debounce == nil {
				debounce = time.NewTimer(r.debounce)
				debounceCh = debounce.C
			} else {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(r.debounce)
			}

		case <-debounceCh:
			debounce = nil
			debounceCh = nil
			r.reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return r.shutdown()
			}
			r.logger.Error("file watcher error", "error", err)
		}
	}
}

// Stop signals Run to shut down.
func (r *Runner) Stop() {
	r.logger.Debug("Stopping config watcher")
	if r.localCancel != nil {
		r.localCancel()
	}
}

// GetCurrent returns the most recent valid config.
func (r *Runner) GetCurrent() *config.Config {
	r.currentMu.RLock()
	defer r.currentMu.RUnlock()
	return r.current
}

// GetConfigChan returns a channel that delivers each new valid config. The
// current config is sent immediately. The channel is closed when the watcher's
// parent context ends.
func (r *Runner) GetConfigChan() <-chan *config.Config {
	ch := make(chan *config.Config, 1)

	if current := r.GetCurrent(); current != nil {
		ch <- current
	}

	id := r.subscriberCounter.Add(1)
	r.subscribers.Store(id, ch)

	go func() {
		<-r.parentCtx.Done()
		r.subscribers.Delete(id)
		close(ch)
	}()

	return ch
}

// relevant filters events down to writes touching the config file itself.
func (r *Runner) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != r.configPath {
		return false
	}
	return event.Op.Has(fsnotify.Write) ||
		event.Op.Has(fsnotify.Create) ||
		event.Op.Has(fsnotify.Rename)
}

// reload re-reads and validates the config file. Invalid configs are
// rejected; the previous config stays current.
func (r *Runner) reload() {
	cfg, err := config.NewConfig(r.configPath)
	if err != nil {
		r.logger.Error("config reload rejected, keeping previous config",
			"path", r.configPath, "error", err)
		return
	}

	r.currentMu.Lock()
	r.current = cfg
	r.currentMu.Unlock()

	r.logger.Info("config reloaded", "path", r.configPath, "scripts", len(cfg.Scripts))
	r.broadcast(cfg)
}

func (r *Runner) broadcast(cfg *config.Config) {
	r.subscribers.Range(func(key, value any) bool {
		ch := value.(chan *config.Config)
		select {
		case ch <- cfg:
		default:
			r.logger.Warn("config subscriber not keeping up, dropping update")
		}
		return true
	})
}

func (r *Runner) shutdown() error {
	if err := r.fsm.Transition(finitestate.StatusStopping); err != nil {
		return fmt.Errorf("failed to transition to stopping state: %w", err)
	}
	if err := r.fsm.Transition(finitestate.StatusStopped); err != nil {
		r.logger.Error("Failed to transition to stopped state", "error", err)
	}
	r.logger.Debug("Config watcher stopped")
	return nil
}
