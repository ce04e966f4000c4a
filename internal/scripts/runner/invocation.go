package runner

import (
	"log/slog"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/gymbridge/gymbridge/internal/scripts/registry"
	"github.com/robbyt/go-loglater"
)

// Invocation is the transient record of one spawned script process. It owns
// the invocation-scoped logger, whose history is collected so a failure can
// be replayed to the operator.
type Invocation struct {
	ID         uuid.UUID
	Descriptor registry.Descriptor
	Function   string
	StartedAt  time.Time

	logger       *slog.Logger
	logCollector *loglater.LogCollector
}

func newInvocation(
	desc registry.Descriptor,
	function string,
	handler slog.Handler,
) *Invocation {
	id := uuid.Must(uuid.NewV6())

	logCollector := loglater.NewLogCollector(handler)
	logger := slog.New(logCollector).With(
		"invocation", id,
		"script", desc.Name,
	)
	if function != "" {
		logger = logger.With("function", function)
	}

	return &Invocation{
		ID:           id,
		Descriptor:   desc,
		Function:     function,
		StartedAt:    time.Now(),
		logger:       logger,
		logCollector: logCollector,
	}
}

// Logger returns the invocation-scoped logger.
func (inv *Invocation) Logger() *slog.Logger {
	return inv.logger
}

// PlaybackLogs replays everything this invocation logged to the given
// handler, so a failure's full history can be surfaced after the fact.
func (inv *Invocation) PlaybackLogs(handler slog.Handler) error {
	return inv.logCollector.PlayLogs(handler)
}

// Key returns the app state result key for this invocation.
func (inv *Invocation) Key() string {
	return inv.Descriptor.ResultKey(inv.Function)
}
