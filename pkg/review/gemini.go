package review

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"gazette-ingest/pkg/domain"
)

// GeminiConfig configures a Gemini completer.
type GeminiConfig struct {
	APIKey   string
	Model    string
	JSONMode bool
}

// GeminiCompleter implements Completer with the Gemini generateContent API.
type GeminiCompleter struct {
	client   *genai.Client
	model    string
	jsonMode bool
}

var _ Completer = (*GeminiCompleter)(nil)

// NewGeminiCompleter builds a completer from configuration. Close releases
// the underlying client.
func NewGeminiCompleter(ctx context.Context, cfg GeminiConfig) (*GeminiCompleter, error) {
	if cfg.APIKey == "" || cfg.Model == "" {
		return nil, errors.New("gemini completer misconfigured: api key and model are required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiCompleter{client: client, model: cfg.Model, jsonMode: cfg.JSONMode}, nil
}

// Close closes the client.
func (c *GeminiCompleter) Close() error {
	return c.client.Close()
}

// Complete sends the prompt with the system instruction and returns the first candidate.
func (c *GeminiCompleter) Complete(ctx context.Context, req Request) (Completion, error) {
	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(0)
	if c.jsonMode {
		model.ResponseMIMEType = "application/json"
	}
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return Completion{}, fmt.Errorf("generate content: %w", err)
	}
	return geminiCompletion(resp)
}

func geminiCompletion(resp *genai.GenerateContentResponse) (Completion, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Completion{}, errors.New("generate content returned no candidates")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	out := Completion{Content: text.String()}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = domain.TokenUsage{
			TotalTokens:  int(u.TotalTokenCount),
			OutputTokens: int(u.CandidatesTokenCount),
			InputTokens:  int(u.PromptTokenCount),
		}
	}
	return out, nil
}
