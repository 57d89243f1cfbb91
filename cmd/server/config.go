package main

import (
	"fmt"
	"log/slog"
	"maps"
	"os"

	"github.com/MegaGrindStone/streamchat/internal/chat"
	"github.com/MegaGrindStone/streamchat/internal/services"
	"gopkg.in/yaml.v3"
)

type transportConfig interface {
	strategy(logger *slog.Logger) (chat.Strategy, error)
}

type completerConfig interface {
	completer(logger *slog.Logger) (chat.Completer, error)
}

type config struct {
	Port       string           `yaml:"port"`
	LogLevel   string           `yaml:"logLevel"`
	Cleanup    bool             `yaml:"cleanup"`
	Generation generationConfig `yaml:"generation"`
	Transport  transportConfig  `yaml:"transport"`
	Completer  completerConfig  `yaml:"completer"`

	// transportRaw keeps the undecoded transport block so the --transport flag can re-decode it.
	transportRaw map[string]any
}

type generationConfig struct {
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"maxTokens"`
}

// BaseTransportConfig contains the common fields for all transport and completer configurations.
type BaseTransportConfig struct {
	Type string `yaml:"type"`
}

type subscriptionConfig struct {
	BaseTransportConfig `yaml:",inline"`
	URL                 string `yaml:"url"`
}

type chunkedConfig struct {
	BaseTransportConfig `yaml:",inline"`
	URL                 string `yaml:"url"`
}

type agentConfig struct {
	BaseTransportConfig `yaml:",inline"`
	BaseURL             string `yaml:"baseURL"`
	AgentID             string `yaml:"agentID"`
}

type openAIConfig struct {
	BaseTransportConfig `yaml:",inline"`
	APIKey              string `yaml:"apiKey"`
	BaseURL             string `yaml:"baseURL"`
}

type ollamaConfig struct {
	BaseTransportConfig `yaml:",inline"`
	Host                string `yaml:"host"`
}

const (
	defaultPort        = "8080"
	defaultLogLevel    = "info"
	defaultModel       = "deepseek-chat"
	defaultTemperature = 0.7
	defaultMaxTokens   = 800
)

func loadConfig(path string) (config, error) {
	f, err := os.Open(path)
	if err != nil {
		return config{}, fmt.Errorf("error opening config file: %w", err)
	}
	defer f.Close()

	cfg := config{}
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return config{}, fmt.Errorf("error decoding config file: %w", err)
	}
	return cfg, nil
}

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig struct {
		Port       string            `yaml:"port"`
		LogLevel   string            `yaml:"logLevel"`
		Cleanup    bool              `yaml:"cleanup"`
		Generation *generationConfig `yaml:"generation"`
		Transport  map[string]any    `yaml:"transport"`
		Completer  map[string]any    `yaml:"completer"`
	}

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	c.Port = rawConfig.Port
	if c.Port == "" {
		c.Port = defaultPort
	}
	c.LogLevel = rawConfig.LogLevel
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	c.Cleanup = rawConfig.Cleanup

	c.Generation = generationConfig{
		Model:       defaultModel,
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	}
	if g := rawConfig.Generation; g != nil {
		if g.Model != "" {
			c.Generation.Model = g.Model
		}
		if g.Temperature != 0 {
			c.Generation.Temperature = g.Temperature
		}
		if g.MaxTokens != 0 {
			c.Generation.MaxTokens = g.MaxTokens
		}
	}

	if rawConfig.Transport == nil {
		return fmt.Errorf("transport is required")
	}
	transport, err := decodeTransport(rawConfig.Transport)
	if err != nil {
		return err
	}
	c.Transport = transport
	c.transportRaw = rawConfig.Transport

	if rawConfig.Completer != nil {
		completer, err := decodeCompleter(rawConfig.Completer)
		if err != nil {
			return err
		}
		c.Completer = completer
	}

	return nil
}

// setTransportType decodes the transport block again as a transport of type t.
func (c *config) setTransportType(t string) error {
	raw := maps.Clone(c.transportRaw)
	if raw == nil {
		raw = map[string]any{}
	}
	raw["type"] = t

	transport, err := decodeTransport(raw)
	if err != nil {
		return err
	}
	c.Transport = transport
	c.transportRaw = raw
	return nil
}

func (c config) logLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

func decodeTransport(raw map[string]any) (transportConfig, error) {
	transportType, ok := raw["type"].(string)
	if !ok {
		return nil, fmt.Errorf("transport type is required")
	}

	var transport transportConfig
	switch transportType {
	case "subscription":
		transport = &subscriptionConfig{}
	case "chunked":
		transport = &chunkedConfig{}
	case "agent":
		transport = &agentConfig{}
	case "openai":
		transport = &openAIConfig{}
	case "ollama":
		transport = &ollamaConfig{}
	default:
		return nil, fmt.Errorf("unknown transport type: %s", transportType)
	}

	if err := remarshal(raw, transport); err != nil {
		return nil, fmt.Errorf("error decoding %s transport: %w", transportType, err)
	}
	return transport, nil
}

func decodeCompleter(raw map[string]any) (completerConfig, error) {
	completerType, ok := raw["type"].(string)
	if !ok {
		return nil, fmt.Errorf("completer type is required")
	}

	var completer completerConfig
	switch completerType {
	case "agent":
		completer = &agentConfig{}
	case "openai":
		completer = &openAIConfig{}
	default:
		return nil, fmt.Errorf("unknown completer type: %s", completerType)
	}

	if err := remarshal(raw, completer); err != nil {
		return nil, fmt.Errorf("error decoding %s completer: %w", completerType, err)
	}
	return completer, nil
}

func remarshal(raw map[string]any, out any) error {
	rawYAML, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(rawYAML, out)
}

func (s subscriptionConfig) strategy(logger *slog.Logger) (chat.Strategy, error) {
	if s.URL == "" {
		return nil, fmt.Errorf("url is required")
	}
	return services.NewSubscription(s.URL, logger), nil
}

func (c chunkedConfig) strategy(logger *slog.Logger) (chat.Strategy, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("url is required")
	}
	return services.NewChunked(c.URL, logger), nil
}

func (a agentConfig) newAgent(logger *slog.Logger) (services.Agent, error) {
	if a.BaseURL == "" {
		return services.Agent{}, fmt.Errorf("baseURL is required")
	}
	if a.AgentID == "" {
		return services.Agent{}, fmt.Errorf("agentID is required")
	}
	return services.NewAgent(a.BaseURL, a.AgentID, logger), nil
}

func (a agentConfig) strategy(logger *slog.Logger) (chat.Strategy, error) {
	return a.newAgent(logger)
}

func (a agentConfig) completer(logger *slog.Logger) (chat.Completer, error) {
	return a.newAgent(logger)
}

func (o openAIConfig) newOpenAI(logger *slog.Logger) services.OpenAI {
	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	return services.NewOpenAI(apiKey, o.BaseURL, logger)
}

func (o openAIConfig) strategy(logger *slog.Logger) (chat.Strategy, error) {
	return o.newOpenAI(logger), nil
}

func (o openAIConfig) completer(logger *slog.Logger) (chat.Completer, error) {
	return o.newOpenAI(logger), nil
}

func (o ollamaConfig) strategy(logger *slog.Logger) (chat.Strategy, error) {
	host := o.Host
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	if host == "" {
		host = "http://localhost:11434"
	}
	return services.NewOllama(host, logger)
}
