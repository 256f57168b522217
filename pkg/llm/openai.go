package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dialoggen/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/logging"
)

// DefaultOpenAIEndpoint is used when no base URL is configured.
const DefaultOpenAIEndpoint = "https://api.openai.com/v1"

// OpenAIService talks to OpenAI or any OpenAI-compatible endpoint
// (vLLM, Ollama, LM Studio).
type OpenAIService struct {
	client   *openai.Client
	endpoint string
	model    string
	logger   *zap.Logger
}

// NewOpenAIService creates a new OpenAI-compatible completion service.
func NewOpenAIService(cfg *Config, logger *zap.Logger) (*OpenAIService, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultOpenAIEndpoint
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(endpoint, "/")
	clientConfig.HTTPClient = newHTTPClient(cfg.timeout())

	return &OpenAIService{
		client:   openai.NewClientWithConfig(clientConfig),
		endpoint: endpoint,
		model:    cfg.Model,
		logger:   logger.Named("llm.openai"),
	}, nil
}

// Complete sends the system and user messages as a chat completion.
func (s *OpenAIService) Complete(ctx context.Context, req *CompletionRequest) (string, error) {
	var messages []openai.ChatCompletionMessage
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	s.logger.Debug("Completion request",
		zap.String("model", s.model),
		zap.Int("prompt_len", len(req.Prompt)),
		zap.Float64("temperature", req.Temperature),
		zap.Int("max_output_tokens", req.MaxOutputTokens))

	start := time.Now()

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxOutputTokens,
		N:           req.CandidateCount,
	})
	if err != nil {
		s.logger.Warn("Completion request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.String("error", logging.SanitizeError(err)))
		return "", withContext(err, s.model, s.endpoint)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", NewErrorWithContext(ErrorTypeEmpty, "no content in response", true, apperrors.ErrEmptyCompletion, s.model, s.endpoint, 0)
	}

	s.logger.Debug("Completion request completed",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return resp.Choices[0].Message.Content, nil
}

// SeparatesRoles is true: system and user go in distinct chat messages.
func (s *OpenAIService) SeparatesRoles() bool {
	return true
}

// GetModel returns the configured model name.
func (s *OpenAIService) GetModel() string {
	return s.model
}

// GetEndpoint returns the configured endpoint.
func (s *OpenAIService) GetEndpoint() string {
	return s.endpoint
}
