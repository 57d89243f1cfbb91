package chat

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MegaGrindStone/streamchat/internal/models"
	"github.com/google/uuid"
)

// Inline notices written into the assistant message when a session ends abnormally.
const (
	ConnectionFailedNotice      = "Connection error, unable to get a response. Please try again later."
	ConnectionInterruptedNotice = "Connection interrupted, response incomplete."
	AbortedNotice               = "[response aborted by user]"
)

const (
	reasonStop       = "stop"
	reasonEOF        = "eof"
	reasonAbort      = "abort"
	reasonSuperseded = "superseded"
	reasonCompleted  = "completed"

	completerName = "completer"

	errLoggerKey = "err"
)

// ErrNoCompleter is returned by Complete when the controller was built without a Completer.
var ErrNoCompleter = errors.New("no completer configured")

// Params holds the generation parameters sent with every request.
type Params struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Options holds the optional collaborators of a Controller.
type Options struct {
	// Completer enables the non-streaming Complete path.
	Completer Completer
	// Cleanup, if set, is applied once to the final assistant content when a stream stops normally.
	Cleanup func(string) string
	// Metrics receives session observations. Defaults to a no-op.
	Metrics Metrics
	// OnChange is called, outside of the controller's lock, after every change of the conversation or the
	// status.
	OnChange func()
}

// Turn identifies the two messages appended by one submission.
type Turn struct {
	UserID      string
	AssistantID string
}

// Snapshot is a point-in-time copy of the controller's state.
type Snapshot struct {
	Messages []models.Message
	Status   models.Status
}

// Controller owns a conversation and its single stream session. A new submission always supersedes the
// session in flight: the old transport is cancelled before the new placeholder is appended, and events
// that the old transport still delivers are discarded.
type Controller struct {
	mu      sync.Mutex
	conv    *models.Conversation
	status  models.Status
	current *session

	strategy  Strategy
	completer Completer
	params    Params
	cleanup   func(string) string
	metrics   Metrics
	onChange  func()

	wg     sync.WaitGroup
	logger *slog.Logger
}

type session struct {
	id       string
	strategy string
	cancel   context.CancelFunc
	started  time.Time
}

// NewController creates a Controller streaming through strategy. Strategy selection is static: the same
// strategy serves every submission.
func NewController(strategy Strategy, params Params, logger *slog.Logger, opts Options) *Controller {
	metrics := opts.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Controller{
		conv:      models.NewConversation(),
		status:    models.StatusIdle,
		strategy:  strategy,
		completer: opts.Completer,
		params:    params,
		cleanup:   opts.Cleanup,
		metrics:   metrics,
		onChange:  opts.OnChange,
		logger:    logger.With(slog.String("module", "chat")),
	}
}

// Submit appends text as a user message followed by an empty assistant placeholder, and starts streaming
// the response into the placeholder. It returns models.ErrEmptyMessage, without touching any state, if text
// is empty.
func (c *Controller) Submit(text string) (Turn, error) {
	c.mu.Lock()
	s, turn, req, err := c.openLocked(text, c.strategy.Name())
	if err != nil {
		c.mu.Unlock()
		return Turn{}, err
	}
	// The iterator is created under the lock so a strategy observes submissions in order.
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	events := c.strategy.Stream(ctx, req)
	c.wg.Add(1)
	c.mu.Unlock()

	c.logger.Debug("Session opened",
		slog.String("session", s.id),
		slog.String("strategy", s.strategy))
	c.notify()

	go c.run(s, events)
	return turn, nil
}

// Complete is the non-streaming alternative to Submit: the whole response is requested from the Completer
// and written into the placeholder at once.
func (c *Controller) Complete(text string) (Turn, error) {
	if c.completer == nil {
		return Turn{}, ErrNoCompleter
	}

	c.mu.Lock()
	s, turn, req, err := c.openLocked(text, completerName)
	if err != nil {
		c.mu.Unlock()
		return Turn{}, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	c.wg.Add(1)
	c.mu.Unlock()

	c.notify()

	go c.generate(ctx, s, req)
	return turn, nil
}

// Abort cancels the session in flight and marks the assistant message as aborted. It reports false, and
// does nothing, if no session is open.
func (c *Controller) Abort() bool {
	c.mu.Lock()
	if c.current == nil || !c.status.Active() {
		c.mu.Unlock()
		return false
	}
	id := c.current.id
	c.closeLocked(reasonAbort)
	c.appendNoticeLocked(AbortedNotice)
	c.mu.Unlock()

	c.logger.Info("Session aborted by user", slog.String("session", id))
	c.notify()
	return true
}

// Snapshot returns a copy of the transcript and the current status.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		Messages: c.conv.Messages(),
		Status:   c.status,
	}
}

// Wait blocks until every session goroutine, including superseded ones, has returned.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) openLocked(text, strategy string) (*session, Turn, models.ChatRequest, error) {
	// An empty submission must not supersede the session in flight.
	if strings.TrimSpace(text) == "" {
		return nil, Turn{}, models.ChatRequest{}, models.ErrEmptyMessage
	}

	if c.current != nil {
		c.logger.Debug("Superseding session", slog.String("session", c.current.id))
		c.closeLocked(reasonSuperseded)
	}

	if err := c.conv.AppendUserMessage(text); err != nil {
		return nil, Turn{}, models.ChatRequest{}, err
	}
	user, _ := c.conv.Last()
	// The request carries the history up to the user message, so it is built before the placeholder.
	req := models.ChatRequest{
		Model:       c.params.Model,
		Messages:    c.conv.Messages(),
		Temperature: c.params.Temperature,
		MaxTokens:   c.params.MaxTokens,
	}
	c.conv.AppendPlaceholder()
	placeholder, _ := c.conv.Last()

	s := &session{
		id:       uuid.New().String(),
		strategy: strategy,
		started:  time.Now(),
	}
	c.current = s
	c.status = models.StatusLoading
	c.metrics.SessionStarted(strategy)

	return s, Turn{UserID: user.ID, AssistantID: placeholder.ID}, req, nil
}

func (c *Controller) run(s *session, events iter.Seq2[models.Event, error]) {
	defer c.wg.Done()

	for ev, err := range events {
		if !c.apply(s, ev, err) {
			return
		}
	}

	c.mu.Lock()
	if c.current != s {
		c.mu.Unlock()
		return
	}
	c.closeLocked(reasonEOF)
	c.mu.Unlock()

	c.logger.Debug("Stream ended without stop signal", slog.String("session", s.id))
	c.notify()
}

// apply applies one event of session s and reports whether the session should keep consuming.
func (c *Controller) apply(s *session, ev models.Event, err error) bool {
	c.mu.Lock()
	if c.current != s {
		c.mu.Unlock()
		c.logger.Debug("Discarding event of stale session", slog.String("session", s.id))
		return false
	}

	if err != nil {
		kind := models.ErrorKind(err)
		c.closeLocked(string(kind))
		c.failLocked(kind, err)
		c.mu.Unlock()

		c.logger.Error("Stream failed",
			slog.String("session", s.id),
			slog.String("kind", string(kind)),
			slog.String(errLoggerKey, err.Error()))
		c.notify()
		return false
	}

	keepGoing := true
	switch ev.Kind {
	case models.EventDelta:
		c.conv.AppendDelta(ev.Text)
		c.status = models.StatusStreaming
		c.metrics.DeltaReceived(s.strategy)
	case models.EventStop:
		if c.cleanup != nil {
			if last, ok := c.conv.Last(); ok {
				c.conv.SetLastContent(c.cleanup(last.Content))
			}
		}
		c.closeLocked(reasonStop)
		keepGoing = false
	}
	c.mu.Unlock()

	c.notify()
	return keepGoing
}

func (c *Controller) generate(ctx context.Context, s *session, req models.ChatRequest) {
	defer c.wg.Done()

	content, err := c.completer.Generate(ctx, req)

	c.mu.Lock()
	if c.current != s {
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.closeLocked(string(models.KindTransport))
		c.appendNoticeLocked(fmt.Sprintf("Error sending message: %v", err))
		c.mu.Unlock()

		c.logger.Error("Completion failed",
			slog.String("session", s.id),
			slog.String(errLoggerKey, err.Error()))
		c.notify()
		return
	}
	c.conv.SetLastContent(content)
	c.closeLocked(reasonCompleted)
	c.mu.Unlock()

	c.notify()
}

// closeLocked releases the current session's transport and returns the controller to idle.
func (c *Controller) closeLocked(reason string) {
	s := c.current
	if s == nil {
		return
	}
	c.current = nil
	if s.cancel != nil {
		s.cancel()
	}
	c.status = models.StatusIdle
	c.metrics.SessionFinished(s.strategy, reason, time.Since(s.started))
}

func (c *Controller) failLocked(kind models.StreamErrorKind, err error) {
	if kind != models.KindTransport {
		msg := err.Error()
		var se *models.StreamError
		if errors.As(err, &se) {
			msg = se.Err.Error()
		}
		c.appendNoticeLocked(fmt.Sprintf("Error processing response: %s", msg))
		return
	}

	last, ok := c.conv.Last()
	if !ok {
		return
	}
	if last.Content == "" {
		c.conv.SetLastContent(ConnectionFailedNotice)
		return
	}
	c.conv.AppendDelta("\n\n" + ConnectionInterruptedNotice)
}

// appendNoticeLocked writes text into the last message, separated from any existing content by a blank line.
func (c *Controller) appendNoticeLocked(text string) {
	last, ok := c.conv.Last()
	if !ok {
		return
	}
	if last.Content == "" {
		c.conv.SetLastContent(text)
		return
	}
	c.conv.AppendDelta("\n\n" + text)
}

func (c *Controller) notify() {
	if c.onChange != nil {
		c.onChange()
	}
}
