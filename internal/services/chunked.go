package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MegaGrindStone/streamchat/internal/models"
)

// Chunked streams chat completions by POSTing the GraphQL subscription and framing the response body
// itself, without an event-stream client. Only lines carrying the data prefix are parsed.
type Chunked struct {
	endpoint string

	client *http.Client

	logger *slog.Logger
}

const (
	dataPrefix   = "data: "
	readBufferSz = 4096
)

// NewChunked creates a Chunked strategy against the GraphQL endpoint.
func NewChunked(endpoint string, logger *slog.Logger) Chunked {
	return Chunked{
		endpoint: endpoint,
		client:   &http.Client{},
		logger:   logger.With(slog.String("module", "chunked")),
	}
}

// Name implements chat.Strategy.
func (c Chunked) Name() string {
	return "chunked"
}

// Stream issues the request and yields the chunk of every framed payload. The end of the body ends the
// stream without error, even if no payload finished it.
func (c Chunked) Stream(ctx context.Context, req models.ChatRequest) iter.Seq2[models.Event, error] {
	return func(yield func(models.Event, error) bool) {
		jsonBody, err := json.Marshal(newGraphQLRequest(req))
		if err != nil {
			yield(models.Event{}, models.TransportError(fmt.Errorf("error marshaling request: %w", err)))
			return
		}

		c.logger.Debug("Request Body", slog.String("body", string(jsonBody)))

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(jsonBody))
		if err != nil {
			yield(models.Event{}, models.TransportError(fmt.Errorf("error creating request: %w", err)))
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "text/event-stream")

		resp, err := c.client.Do(httpReq)
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

		var lines LineBuffer
		buf := make([]byte, readBufferSz)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				c.logger.Debug("Received chunk", slog.String("chunk", string(buf[:n])))

				for _, line := range lines.Write(buf[:n]) {
					data, ok := strings.CutPrefix(line, dataPrefix)
					if !ok {
						continue
					}
					if yieldGraphQLPayload(data, yield) {
						return
					}
				}
			}
			if err == nil {
				continue
			}
			if errors.Is(err, io.EOF) {
				if rest := lines.Flush(); rest != "" {
					c.logger.Debug("Dropping unterminated fragment", slog.String("fragment", rest))
				}
				return
			}
			if ctx.Err() != nil {
				return
			}
			yield(models.Event{}, models.TransportError(fmt.Errorf("error reading response: %w", err)))
			return
		}
	}
}
