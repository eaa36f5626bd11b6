package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ChatMessage is one entry of a role-tagged transcript handed to the model.
type ChatMessage struct {
	Role    string `json:"role"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}

// LLM is the external language-model service. It either returns text or
// fails; callers treat timeouts and explicit errors identically.
type LLM interface {
	Complete(ctx context.Context, system string, transcript []ChatMessage) (string, error)
	Model() string
}

// OpenAIConfig configures the chat-completions client.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type openaiLLM struct {
	client openai.Client
	model  string
}

// NewOpenAILLM creates an LLM backed by the OpenAI chat completions API.
func NewOpenAILLM(cfg OpenAIConfig) (LLM, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &openaiLLM{
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

func (c *openaiLLM) Complete(ctx context.Context, system string, transcript []ChatMessage) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(transcript)+1)
	messages = append(messages, openai.SystemMessage(system))

	for _, msg := range transcript {
		switch msg.Role {
		case "assistant":
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			if msg.Name != "" {
				messages = append(messages, openai.ChatCompletionMessageParamUnion{
					OfUser: &openai.ChatCompletionUserMessageParam{
						Name: openai.String(sanitizeName(msg.Name)),
						Content: openai.ChatCompletionUserMessageParamContentUnion{
							OfString: openai.String(msg.Content),
						},
					},
				})
			} else {
				messages = append(messages, openai.UserMessage(msg.Content))
			}
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: openai.Int(1000),
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}

	slog.DebugContext(ctx, "llm chat completed",
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return resp.Choices[0].Message.Content, nil
}

func (c *openaiLLM) Model() string {
	return c.model
}

var nameInvalidChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// sanitizeName converts a display name to a valid API name parameter
// (^[a-zA-Z0-9_-]{1,64}$).
func sanitizeName(username string) string {
	sanitized := nameInvalidChars.ReplaceAllString(username, "_")
	if len(sanitized) > 64 {
		sanitized = sanitized[:64]
	}
	return sanitized
}
