package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/MegaGrindStone/streamchat/internal/models"
	"github.com/ollama/ollama/api"
)

// Ollama streams chat completions from an Ollama server.
type Ollama struct {
	host string

	client *api.Client

	logger *slog.Logger
}

// errStreamDone stops the Ollama client's response callback once the consumer has what it needs.
var errStreamDone = errors.New("stream done")

// NewOllama creates a new Ollama instance with the specified host URL. The host parameter should be a valid
// URL pointing to an Ollama server.
func NewOllama(host string, logger *slog.Logger) (Ollama, error) {
	u, err := url.Parse(host)
	if err != nil {
		return Ollama{}, fmt.Errorf("error parsing host: %w", err)
	}

	return Ollama{
		host:   host,
		client: api.NewClient(u, &http.Client{}),
		logger: logger.With(slog.String("module", "ollama")),
	}, nil
}

// Name implements chat.Strategy.
func (o Ollama) Name() string {
	return "ollama"
}

// Stream implements chat.Strategy by streaming responses from the Ollama model. The done flag of a response
// ends the stream.
func (o Ollama) Stream(ctx context.Context, req models.ChatRequest) iter.Seq2[models.Event, error] {
	return func(yield func(models.Event, error) bool) {
		msgs := make([]api.Message, len(req.Messages))
		for i, msg := range req.Messages {
			msgs[i] = api.Message{
				Role:    string(msg.Role),
				Content: msg.Content,
			}
		}

		t := true
		oreq := api.ChatRequest{
			Model:    req.Model,
			Messages: msgs,
			Stream:   &t,
			Options: map[string]any{
				"temperature": req.Temperature,
				"num_predict": req.MaxTokens,
			},
		}

		o.logger.Debug("Request", slog.String("host", o.host), slog.String("model", req.Model))

		err := o.client.Chat(ctx, &oreq, func(res api.ChatResponse) error {
			o.logger.Debug("Received response",
				slog.String("content", res.Message.Content),
				slog.Bool("done", res.Done))

			if res.Message.Content != "" && !yield(models.Delta(res.Message.Content), nil) {
				return errStreamDone
			}
			if res.Done {
				yield(models.Stop(), nil)
				return errStreamDone
			}
			return nil
		})
		if err == nil || errors.Is(err, errStreamDone) || errors.Is(err, context.Canceled) {
			return
		}

		var statusErr api.StatusError
		var syntaxErr *json.SyntaxError
		switch {
		case errors.As(err, &statusErr):
			msg := statusErr.ErrorMessage
			if msg == "" {
				msg = statusErr.Error()
			}
			yield(models.Event{}, models.ProtocolError(msg))
		case errors.As(err, &syntaxErr):
			yield(models.Event{}, models.ParseError(err))
		default:
			yield(models.Event{}, models.TransportError(fmt.Errorf("error sending request: %w", err)))
		}
	}
}
