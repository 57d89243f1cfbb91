package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/MegaGrindStone/streamchat/internal/models"
	"github.com/tmaxmax/go-sse"
)

// Subscription streams chat completions from a GraphQL server over server-sent events. The subscription
// query and its variables are encoded into the request URL.
type Subscription struct {
	endpoint string

	client *http.Client

	logger *slog.Logger
}

// Event types sent by the GraphQL SSE transport in addition to unnamed message events.
const (
	nextEventType     = "next"
	completeEventType = "complete"
	errorEventType    = "error"
)

// NewSubscription creates a Subscription against the GraphQL endpoint, e.g. http://localhost:8787/graphql.
func NewSubscription(endpoint string, logger *slog.Logger) Subscription {
	return Subscription{
		endpoint: endpoint,
		client:   &http.Client{},
		logger:   logger.With(slog.String("module", "subscription")),
	}
}

// Name implements chat.Strategy.
func (s Subscription) Name() string {
	return "subscription"
}

// Stream opens the event stream and yields the chunks of every message and next event. A complete event or
// a payload with finishReason stop ends it. An error event, or the connection dropping before either was
// seen, yields a transport error.
func (s Subscription) Stream(ctx context.Context, req models.ChatRequest) iter.Seq2[models.Event, error] {
	return func(yield func(models.Event, error) bool) {
		target, err := s.target(req)
		if err != nil {
			yield(models.Event{}, models.TransportError(err))
			return
		}

		s.logger.Debug("Connecting", slog.String("url", target))

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			yield(models.Event{}, models.TransportError(fmt.Errorf("error creating request: %w", err)))
			return
		}
		httpReq.Header.Set("Accept", "text/event-stream")

		resp, err := s.client.Do(httpReq)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			yield(models.Event{}, models.TransportError(fmt.Errorf("error sending request: %w", err)))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(resp.Body)
			yield(models.Event{}, models.TransportError(
				fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body))))
			return
		}

		for ev, err := range sse.Read(resp.Body, nil) {
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				yield(models.Event{}, models.TransportError(fmt.Errorf("error reading response: %w", err)))
				return
			}

			s.logger.Debug("Received event",
				slog.String("type", ev.Type),
				slog.String("data", ev.Data),
			)

			switch ev.Type {
			case "", "message", nextEventType:
				if yieldGraphQLPayload(ev.Data, yield) {
					return
				}
			case completeEventType:
				yield(models.Stop(), nil)
				return
			case errorEventType:
				msg := ev.Data
				if msg == "" {
					msg = "upstream sent an error event"
				}
				yield(models.Event{}, models.TransportError(errors.New(msg)))
				return
			default:
				continue
			}
		}

		if ctx.Err() != nil {
			return
		}
		yield(models.Event{}, models.TransportError(errors.New("connection closed before the response completed")))
	}
}

func (s Subscription) target(req models.ChatRequest) (string, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return "", fmt.Errorf("error parsing endpoint: %w", err)
	}

	gr := newGraphQLRequest(req)
	variables, err := json.Marshal(gr.Variables)
	if err != nil {
		return "", fmt.Errorf("error marshaling variables: %w", err)
	}

	q := u.Query()
	q.Set("query", gr.Query)
	q.Set("variables", string(variables))
	u.RawQuery = q.Encode()

	return u.String(), nil
}
