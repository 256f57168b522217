package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dialoggen/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/logging"
)

// DefaultAnthropicEndpoint is reported when no base URL is configured.
const DefaultAnthropicEndpoint = "https://api.anthropic.com/v1"

// defaultAnthropicMaxTokens is required by the Messages API.
const defaultAnthropicMaxTokens = 1024

// AnthropicService talks to the Anthropic Messages API.
type AnthropicService struct {
	client   *anthropic.Client
	endpoint string
	model    string
	logger   *zap.Logger
}

// NewAnthropicService creates a new Anthropic completion service.
func NewAnthropicService(cfg *Config, logger *zap.Logger) (*AnthropicService, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required for anthropic")
	}

	opts := []anthropic.ClientOption{
		anthropic.WithHTTPClient(newHTTPClient(cfg.timeout())),
	}
	endpoint := DefaultAnthropicEndpoint
	if cfg.Endpoint != "" {
		endpoint = strings.TrimSuffix(cfg.Endpoint, "/")
		opts = append(opts, anthropic.WithBaseURL(endpoint))
	}

	return &AnthropicService{
		client:   anthropic.NewClient(cfg.APIKey, opts...),
		endpoint: endpoint,
		model:    cfg.Model,
		logger:   logger.Named("llm.anthropic"),
	}, nil
}

// Complete sends the prompt as a single user message with the system
// instruction in the request's System field.
func (s *AnthropicService) Complete(ctx context.Context, req *CompletionRequest) (string, error) {
	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	temperature := float32(req.Temperature)
	prompt := req.Prompt

	s.logger.Debug("Completion request",
		zap.String("model", s.model),
		zap.Int("prompt_len", len(prompt)),
		zap.Float64("temperature", req.Temperature),
		zap.Int("max_output_tokens", maxTokens))

	start := time.Now()

	resp, err := s.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(s.model),
		System:      req.System,
		MaxTokens:   maxTokens,
		Temperature: &temperature,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})
	if err != nil {
		s.logger.Warn("Completion request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.String("error", logging.SanitizeError(err)))
		return "", withContext(err, s.model, s.endpoint)
	}

	text := extractText(resp)
	if strings.TrimSpace(text) == "" {
		return "", NewErrorWithContext(ErrorTypeEmpty, "no text block in response", true, apperrors.ErrEmptyCompletion, s.model, s.endpoint, 0)
	}

	s.logger.Debug("Completion request completed",
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return text, nil
}

// extractText concatenates the text blocks of a Messages response.
func extractText(resp anthropic.MessagesResponse) string {
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			b.WriteString(*block.Text)
		}
	}
	return b.String()
}

// SeparatesRoles is true: the system instruction has its own field.
func (s *AnthropicService) SeparatesRoles() bool {
	return true
}

// GetModel returns the configured model name.
func (s *AnthropicService) GetModel() string {
	return s.model
}

// GetEndpoint returns the configured endpoint.
func (s *AnthropicService) GetEndpoint() string {
	return s.endpoint
}
