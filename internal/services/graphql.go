package services

import (
	"encoding/json"
	"fmt"

	"github.com/MegaGrindStone/streamchat/internal/models"
)

const streamChatSubscription = `subscription StreamChatCompletion($input: ChatCompletionInput!) {
  streamChatCompletion(input: $input) {
    id
    chunk
    finishReason
  }
}`

const finishReasonStop = "stop"

type graphQLRequest struct {
	Query     string           `json:"query"`
	Variables graphQLVariables `json:"variables"`
}

type graphQLVariables struct {
	Input chatCompletionInput `json:"input"`
}

type chatCompletionInput struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type graphQLPayload struct {
	Data *struct {
		StreamChatCompletion *streamChatCompletion `json:"streamChatCompletion"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type streamChatCompletion struct {
	ID           string `json:"id"`
	Chunk        string `json:"chunk"`
	FinishReason string `json:"finishReason"`
}

func chatMessages(messages []models.Message) []chatMessage {
	msgs := make([]chatMessage, len(messages))
	for i, msg := range messages {
		msgs[i] = chatMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}
	return msgs
}

func newGraphQLRequest(req models.ChatRequest) graphQLRequest {
	return graphQLRequest{
		Query: streamChatSubscription,
		Variables: graphQLVariables{
			Input: chatCompletionInput{
				Model:       req.Model,
				Messages:    chatMessages(req.Messages),
				Temperature: req.Temperature,
				MaxTokens:   req.MaxTokens,
			},
		},
	}
}

// parseGraphQLPayload decodes one subscription payload into the chunk it carries and whether it finished
// the stream.
func parseGraphQLPayload(data string) (string, bool, error) {
	var p graphQLPayload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return "", false, models.ParseError(fmt.Errorf("error unmarshaling payload: %w", err))
	}

	if len(p.Errors) > 0 {
		msg := p.Errors[0].Message
		if msg == "" {
			msg = "unknown error"
		}
		return "", false, models.ProtocolError(msg)
	}

	if p.Data == nil || p.Data.StreamChatCompletion == nil {
		return "", false, nil
	}
	c := p.Data.StreamChatCompletion
	return c.Chunk, c.FinishReason == finishReasonStop, nil
}

// yieldGraphQLPayload yields the events of one payload. It reports whether the stream is over, either
// because the payload was terminal or because the consumer stopped.
func yieldGraphQLPayload(data string, yield func(models.Event, error) bool) bool {
	chunk, stop, err := parseGraphQLPayload(data)
	if err != nil {
		yield(models.Event{}, err)
		return true
	}
	if chunk != "" && !yield(models.Delta(chunk), nil) {
		return true
	}
	if stop {
		yield(models.Stop(), nil)
		return true
	}
	return false
}
