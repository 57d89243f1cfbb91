package services_test

import (
	"context"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"testing"

	"github.com/MegaGrindStone/streamchat/internal/models"
	"github.com/stretchr/testify/require"
)

var testRequest = models.ChatRequest{
	Model: "deepseek-chat",
	Messages: []models.Message{
		{Role: models.RoleUser, Content: "hello"},
	},
	Temperature: 0.7,
	MaxTokens:   800,
}

type streamResult struct {
	deltas  []string
	stopped bool
	err     error
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// collect drains seq the way the controller does: it stops at the first error or stop event.
func collect(t *testing.T, seq iter.Seq2[models.Event, error]) streamResult {
	t.Helper()
	var res streamResult
	for ev, err := range seq {
		require.False(t, res.stopped, "event yielded after stop")
		require.NoError(t, res.err, "event yielded after error")
		if err != nil {
			res.err = err
			break
		}
		switch ev.Kind {
		case models.EventDelta:
			res.deltas = append(res.deltas, ev.Text)
		case models.EventStop:
			res.stopped = true
		}
	}
	return res
}

func cancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

func writeFlush(w http.ResponseWriter, s string) {
	_, _ = io.WriteString(w, s)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
