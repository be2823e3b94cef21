package review

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"gazette-ingest/pkg/domain"
)

// OpenAIConfig configures an OpenAI or Azure OpenAI completer.
type OpenAIConfig struct {
	APIKey string
	// Model is the model name, or the deployment name on Azure.
	Model string
	// BaseURL overrides the API endpoint. Required for Azure.
	BaseURL    string
	Azure      bool
	APIVersion string
	Timeout    time.Duration
	// JSONMode asks the service for a JSON object response.
	JSONMode bool
}

// OpenAICompleter implements Completer with the chat completions API.
type OpenAICompleter struct {
	client   *openai.Client
	model    string
	jsonMode bool
}

var _ Completer = (*OpenAICompleter)(nil)

// NewOpenAICompleter builds a completer from configuration.
func NewOpenAICompleter(cfg OpenAIConfig) (*OpenAICompleter, error) {
	if cfg.APIKey == "" || cfg.Model == "" {
		return nil, errors.New("openai completer misconfigured: api key and model are required")
	}

	var clientCfg openai.ClientConfig
	if cfg.Azure {
		if cfg.BaseURL == "" {
			return nil, errors.New("openai completer misconfigured: azure endpoint is required")
		}
		clientCfg = openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
		if cfg.APIVersion != "" {
			clientCfg.APIVersion = cfg.APIVersion
		}
		deployment := cfg.Model
		clientCfg.AzureModelMapperFunc = func(string) string { return deployment }
	} else {
		clientCfg = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAICompleter{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    cfg.Model,
		jsonMode: cfg.JSONMode,
	}, nil
}

// Complete sends the system and user messages and returns the first choice.
func (c *OpenAICompleter) Complete(ctx context.Context, req Request) (Completion, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	chatReq := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
		// A zero temperature is dropped by omitempty; this is the closest
		// value that still goes on the wire.
		Temperature: math.SmallestNonzeroFloat32,
	}
	if c.jsonMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return Completion{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, errors.New("chat completion returned no choices")
	}

	return Completion{
		Content: resp.Choices[0].Message.Content,
		Usage: domain.TokenUsage{
			TotalTokens:  resp.Usage.TotalTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			InputTokens:  resp.Usage.PromptTokens,
		},
	}, nil
}
