package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestConfigUnmarshal(t *testing.T) {
	tests := []struct {
		name          string
		yaml          string
		wantErr       bool
		wantTransport transportConfig
		wantCompleter completerConfig
		wantGen       generationConfig
		wantPort      string
	}{
		{
			name: "Subscription with defaults",
			yaml: `
transport:
  type: subscription
  url: http://localhost:4000/graphql
`,
			wantTransport: &subscriptionConfig{
				BaseTransportConfig: BaseTransportConfig{Type: "subscription"},
				URL:                 "http://localhost:4000/graphql",
			},
			wantGen:  generationConfig{Model: "deepseek-chat", Temperature: 0.7, MaxTokens: 800},
			wantPort: "8080",
		},
		{
			name: "Agent with completer and generation",
			yaml: `
port: "9000"
cleanup: true
generation:
  model: gpt-4o-mini
  maxTokens: 1200
transport:
  type: agent
  baseURL: http://localhost:4111
  agentID: codeReviewAgent
completer:
  type: openai
  apiKey: sk-test
  baseURL: https://api.deepseek.com/v1
`,
			wantTransport: &agentConfig{
				BaseTransportConfig: BaseTransportConfig{Type: "agent"},
				BaseURL:             "http://localhost:4111",
				AgentID:             "codeReviewAgent",
			},
			wantCompleter: &openAIConfig{
				BaseTransportConfig: BaseTransportConfig{Type: "openai"},
				APIKey:              "sk-test",
				BaseURL:             "https://api.deepseek.com/v1",
			},
			wantGen:  generationConfig{Model: "gpt-4o-mini", Temperature: 0.7, MaxTokens: 1200},
			wantPort: "9000",
		},
		{
			name:    "Missing transport",
			yaml:    "port: \"8080\"\n",
			wantErr: true,
		},
		{
			name:    "Missing transport type",
			yaml:    "transport:\n  url: http://localhost\n",
			wantErr: true,
		},
		{
			name:    "Unknown transport type",
			yaml:    "transport:\n  type: websocket\n",
			wantErr: true,
		},
		{
			name:    "Ollama cannot complete",
			yaml:    "transport:\n  type: chunked\n  url: http://localhost\ncompleter:\n  type: ollama\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg config
			err := yaml.Unmarshal([]byte(tt.yaml), &cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			assert.Equal(t, tt.wantTransport, cfg.Transport)
			assert.Equal(t, tt.wantCompleter, cfg.Completer)
			assert.Equal(t, tt.wantGen, cfg.Generation)
			assert.Equal(t, tt.wantPort, cfg.Port)
			assert.Equal(t, "info", cfg.LogLevel)
		})
	}
}

func TestConfigSetTransportType(t *testing.T) {
	var cfg config
	err := yaml.Unmarshal([]byte(`
transport:
  type: subscription
  url: http://localhost:4000/graphql
`), &cfg)
	require.NoError(t, err)

	require.NoError(t, cfg.setTransportType("chunked"))
	assert.Equal(t, &chunkedConfig{
		BaseTransportConfig: BaseTransportConfig{Type: "chunked"},
		URL:                 "http://localhost:4000/graphql",
	}, cfg.Transport)

	assert.Error(t, cfg.setTransportType("carrier-pigeon"))
}

func TestConfigStrategy(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name     string
		cfg      transportConfig
		wantName string
		wantErr  bool
	}{
		{name: "Subscription", cfg: subscriptionConfig{URL: "http://localhost"}, wantName: "subscription"},
		{name: "Subscription without url", cfg: subscriptionConfig{}, wantErr: true},
		{name: "Chunked", cfg: chunkedConfig{URL: "http://localhost"}, wantName: "chunked"},
		{name: "Agent", cfg: agentConfig{BaseURL: "http://localhost:4111", AgentID: "a"}, wantName: "agent"},
		{name: "Agent without id", cfg: agentConfig{BaseURL: "http://localhost:4111"}, wantErr: true},
		{name: "OpenAI", cfg: openAIConfig{APIKey: "k"}, wantName: "openai"},
		{name: "Ollama", cfg: ollamaConfig{Host: "http://localhost:11434"}, wantName: "ollama"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := tt.cfg.strategy(logger)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, s.Name())
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logLevel: debug\ntransport:\n  type: ollama\n"), 0o600))

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	level, err := cfg.logLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
