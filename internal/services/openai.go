package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/MegaGrindStone/streamchat/internal/models"
	goopenai "github.com/sashabaranov/go-openai"
)

// OpenAI streams chat completions from any OpenAI-compatible API, such as DeepSeek, through the go-openai
// client.
type OpenAI struct {
	client *goopenai.Client

	logger *slog.Logger
}

// NewOpenAI creates a new OpenAI instance with the specified API key. An empty baseURL keeps the client's
// default endpoint.
func NewOpenAI(apiKey, baseURL string, logger *slog.Logger) OpenAI {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return OpenAI{
		client: goopenai.NewClientWithConfig(cfg),
		logger: logger.With(slog.String("module", "openai")),
	}
}

// Name implements chat.Strategy.
func (o OpenAI) Name() string {
	return "openai"
}

// Stream is a wrapper around the OpenAI streaming chat completion API.
func (o OpenAI) Stream(ctx context.Context, req models.ChatRequest) iter.Seq2[models.Event, error] {
	return func(yield func(models.Event, error) bool) {
		oreq := o.chatRequest(req, true)

		reqJSON, err := json.Marshal(oreq)
		if err == nil {
			o.logger.Debug("Request", slog.String("req", string(reqJSON)))
		}

		stream, err := o.client.CreateChatCompletionStream(ctx, oreq)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			yield(models.Event{}, openAIError(fmt.Errorf("error sending request: %w", err)))
			return
		}
		defer stream.Close()

		for {
			response, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				if errors.Is(err, context.Canceled) {
					return
				}
				yield(models.Event{}, openAIError(fmt.Errorf("error receiving response: %w", err)))
				return
			}

			if len(response.Choices) == 0 {
				continue
			}

			choice := response.Choices[0]
			if choice.Delta.Content != "" {
				if !yield(models.Delta(choice.Delta.Content), nil) {
					return
				}
			}
			if choice.FinishReason == goopenai.FinishReasonStop {
				yield(models.Stop(), nil)
				return
			}
		}
	}
}

// Generate is a wrapper around the OpenAI chat completion API.
func (o OpenAI) Generate(ctx context.Context, req models.ChatRequest) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, o.chatRequest(req, false))
	if err != nil {
		return "", fmt.Errorf("error sending request: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("no choices found")
	}

	return resp.Choices[0].Message.Content, nil
}

func (o OpenAI) chatRequest(req models.ChatRequest, stream bool) goopenai.ChatCompletionRequest {
	msgs := make([]goopenai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		msgs[i] = goopenai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}

	return goopenai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	}
}

// openAIError classifies a client error: API errors carry an explicit error field, malformed chunks are
// parse errors, and everything else is a transport failure.
func openAIError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return models.ProtocolError(apiErr.Message)
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return models.ParseError(err)
	}
	return models.TransportError(err)
}
