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
	"net/url"
	"strings"

	"github.com/MegaGrindStone/streamchat/internal/models"
)

// Agent talks to a hosted agent's HTTP API. Stream consumes the agent's data stream protocol, where every
// line is a one-character part code, a colon and a JSON value. Generate requests a whole completion.
type Agent struct {
	baseURL string
	agentID string

	client *http.Client

	logger *slog.Logger
}

type agentRequest struct {
	Messages []chatMessage `json:"messages"`
	Options  agentOptions  `json:"options"`
}

type agentOptions struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

type agentFinish struct {
	FinishReason string `json:"finishReason"`
}

type agentGenerateResponse struct {
	Content string `json:"content"`
	Text    string `json:"text"`
}

// Data stream part codes.
const (
	agentTextPart     = "0"
	agentDataPart     = "2"
	agentErrorPart    = "3"
	agentAnnotation   = "8"
	agentFilePart     = "k"
	agentFinishMsg    = "d"
	agentFinishStep   = "e"
	agentStartStep    = "f"
	agentDefaultError = "stream processing error"
)

// NewAgent creates an Agent for the agent agentID served at baseURL, e.g. http://localhost:4111.
func NewAgent(baseURL, agentID string, logger *slog.Logger) Agent {
	return Agent{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		agentID: agentID,
		client:  &http.Client{},
		logger:  logger.With(slog.String("module", "agent")),
	}
}

// Name implements chat.Strategy.
func (a Agent) Name() string {
	return "agent"
}

// Stream yields a delta for every text part. An error part ends the stream with a protocol error and the
// finish message part ends it normally. Data, file and step parts are only logged.
func (a Agent) Stream(ctx context.Context, req models.ChatRequest) iter.Seq2[models.Event, error] {
	return func(yield func(models.Event, error) bool) {
		resp, err := a.doRequest(ctx, "stream", req)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			yield(models.Event{}, models.TransportError(err))
			return
		}
		defer resp.Body.Close()

		var lines LineBuffer
		buf := make([]byte, readBufferSz)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				for _, line := range lines.Write(buf[:n]) {
					if a.yieldPart(line, yield) {
						return
					}
				}
			}
			if err == nil {
				continue
			}
			if errors.Is(err, io.EOF) {
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

// yieldPart handles one line of the data stream and reports whether the stream is over.
func (a Agent) yieldPart(line string, yield func(models.Event, error) bool) bool {
	if strings.TrimSpace(line) == "" {
		return false
	}

	code, payload, ok := strings.Cut(line, ":")
	if !ok {
		yield(models.Event{}, models.ParseError(fmt.Errorf("malformed stream part: %q", line)))
		return true
	}

	switch code {
	case agentTextPart:
		var text string
		if err := json.Unmarshal([]byte(payload), &text); err != nil {
			yield(models.Event{}, models.ParseError(fmt.Errorf("error unmarshaling text part: %w", err)))
			return true
		}
		if text == "" {
			return false
		}
		return !yield(models.Delta(text), nil)
	case agentErrorPart:
		var msg string
		if err := json.Unmarshal([]byte(payload), &msg); err != nil || msg == "" {
			msg = agentDefaultError
		}
		yield(models.Event{}, models.ProtocolError(msg))
		return true
	case agentFinishMsg:
		var finish agentFinish
		if err := json.Unmarshal([]byte(payload), &finish); err != nil {
			yield(models.Event{}, models.ParseError(fmt.Errorf("error unmarshaling finish part: %w", err)))
			return true
		}
		a.logger.Debug("Finished", slog.String("reason", finish.FinishReason))
		yield(models.Stop(), nil)
		return true
	case agentDataPart, agentAnnotation, agentFilePart, agentFinishStep, agentStartStep:
		a.logger.Debug("Received part", slog.String("code", code), slog.String("payload", payload))
		return false
	default:
		a.logger.Debug("Ignoring unknown part", slog.String("code", code))
		return false
	}
}

// Generate requests a complete, non-streamed response.
func (a Agent) Generate(ctx context.Context, req models.ChatRequest) (string, error) {
	resp, err := a.doRequest(ctx, "generate", req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var res agentGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", fmt.Errorf("error decoding response: %w", err)
	}
	if res.Content == "" {
		return res.Text, nil
	}
	return res.Content, nil
}

func (a Agent) doRequest(ctx context.Context, action string, req models.ChatRequest) (*http.Response, error) {
	reqBody := agentRequest{
		Messages: chatMessages(req.Messages),
		Options: agentOptions{
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	a.logger.Debug("Request Body", slog.String("action", action), slog.String("body", string(jsonBody)))

	endpoint := fmt.Sprintf("%s/api/agents/%s/%s", a.baseURL, url.PathEscape(a.agentID), action)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body))
	}

	return resp, nil
}
