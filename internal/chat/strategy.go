package chat

import (
	"context"
	"iter"
	"time"

	"github.com/MegaGrindStone/streamchat/internal/models"
)

// Strategy turns a transport-specific upstream stream into a sequence of events. Stream must not perform
// any I/O until the returned iterator is ranged over. Cancelling ctx asks the transport to close; the
// iterator should then end without yielding an error.
//
// Errors yielded by the iterator end the session. They should be created with models.ParseError,
// models.ProtocolError or models.TransportError so the controller can word the inline notice.
type Strategy interface {
	Name() string
	Stream(ctx context.Context, req models.ChatRequest) iter.Seq2[models.Event, error]
}

// Completer produces a whole assistant response in one call.
type Completer interface {
	Generate(ctx context.Context, req models.ChatRequest) (string, error)
}

// Metrics receives session lifecycle observations.
type Metrics interface {
	SessionStarted(strategy string)
	SessionFinished(strategy, reason string, elapsed time.Duration)
	DeltaReceived(strategy string)
}

type nopMetrics struct{}

func (nopMetrics) SessionStarted(string)                         {}
func (nopMetrics) SessionFinished(string, string, time.Duration) {}
func (nopMetrics) DeltaReceived(string)                          {}
