package services_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MegaGrindStone/streamchat/internal/models"
	"github.com/MegaGrindStone/streamchat/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openAIChunk(content, finishReason string) string {
	reason := "null"
	if finishReason != "" {
		reason = `"` + finishReason + `"`
	}
	b, _ := json.Marshal(content)
	return `data: {"id":"chatcmpl-1","object":"chat.completion.chunk","model":"deepseek-chat",` +
		`"choices":[{"index":0,"delta":{"content":` + string(b) + `},"finish_reason":` + reason + `}]}` + "\n\n"
}

func TestOpenAIStream(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        []string
		wantDeltas  []string
		wantStopped bool
		wantKind    models.StreamErrorKind
	}{
		{
			name: "Chunks until finish reason stop",
			body: []string{
				openAIChunk("Hel", ""),
				openAIChunk("lo", ""),
				openAIChunk("", "stop"),
				"data: [DONE]\n\n",
			},
			wantDeltas:  []string{"Hel", "lo"},
			wantStopped: true,
		},
		{
			name: "Done marker without finish reason",
			body: []string{
				openAIChunk("A", ""),
				"data: [DONE]\n\n",
			},
			wantDeltas: []string{"A"},
		},
		{
			name: "Malformed chunk",
			body: []string{
				openAIChunk("A", ""),
				"data: {\"choices\":\n\n",
			},
			wantDeltas: []string{"A"},
			wantKind:   models.KindParse,
		},
		{
			name:     "API error",
			status:   http.StatusUnauthorized,
			body:     []string{`{"error":{"message":"invalid api key","type":"invalid_request_error"}}`},
			wantKind: models.KindProtocol,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/chat/completions" {
					http.NotFound(w, r)
					return
				}
				if tt.status != 0 {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(tt.status)
					_, _ = w.Write([]byte(tt.body[0]))
					return
				}
				w.Header().Set("Content-Type", "text/event-stream")
				for _, c := range tt.body {
					writeFlush(w, c)
				}
			}))
			defer srv.Close()

			o := services.NewOpenAI("test-key", srv.URL+"/v1", discardLogger())
			res := collect(t, o.Stream(context.Background(), testRequest))

			assert.Equal(t, tt.wantDeltas, res.deltas)
			assert.Equal(t, tt.wantStopped, res.stopped)
			if tt.wantKind == "" {
				assert.NoError(t, res.err)
				return
			}
			require.Error(t, res.err)
			assert.Equal(t, tt.wantKind, models.ErrorKind(res.err))
		})
	}
}

func TestOpenAIRequest(t *testing.T) {
	var (
		gotAuth string
		gotBody struct {
			Model       string  `json:"model"`
			Temperature float64 `json:"temperature"`
			MaxTokens   int     `json:"max_tokens"`
			Stream      bool    `json:"stream"`
			Messages    []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "text/event-stream")
		writeFlush(w, openAIChunk("", "stop"))
	}))
	defer srv.Close()

	o := services.NewOpenAI("test-key", srv.URL+"/v1", discardLogger())
	res := collect(t, o.Stream(context.Background(), testRequest))
	require.NoError(t, res.err)
	assert.True(t, res.stopped)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "deepseek-chat", gotBody.Model)
	assert.InDelta(t, 0.7, gotBody.Temperature, 0.0001)
	assert.Equal(t, 800, gotBody.MaxTokens)
	assert.True(t, gotBody.Stream)
	require.Len(t, gotBody.Messages, 1)
	assert.Equal(t, "user", gotBody.Messages[0].Role)
	assert.Equal(t, "hello", gotBody.Messages[0].Content)
}

func TestOpenAIGenerate(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    string
		wantErr bool
	}{
		{
			name: "Success",
			body: `{"id":"chatcmpl-1","object":"chat.completion","choices":[{"index":0,` +
				`"message":{"role":"assistant","content":"full answer"},"finish_reason":"stop"}]}`,
			want: "full answer",
		},
		{
			name:    "No choices",
			body:    `{"id":"chatcmpl-1","object":"chat.completion","choices":[]}`,
			wantErr: true,
		},
		{
			name:    "API error",
			status:  http.StatusTooManyRequests,
			body:    `{"error":{"message":"rate limited","type":"rate_limit_error"}}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				if tt.status != 0 {
					w.WriteHeader(tt.status)
				}
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			o := services.NewOpenAI("test-key", srv.URL+"/v1", discardLogger())
			got, err := o.Generate(context.Background(), testRequest)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
