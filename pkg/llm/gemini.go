package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/ekaya-inc/ekaya-dialoggen/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/logging"
)

// DefaultGeminiEndpoint is reported when no base URL is configured.
const DefaultGeminiEndpoint = "https://generativelanguage.googleapis.com"

// GeminiService talks to the Gemini API. Dialog prompts are sent as one
// combined instruction, so SeparatesRoles is false.
type GeminiService struct {
	client   *genai.Client
	endpoint string
	model    string
	logger   *zap.Logger
}

// NewGeminiService creates a new Gemini completion service.
func NewGeminiService(ctx context.Context, cfg *Config, logger *zap.Logger) (*GeminiService, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required for gemini")
	}

	clientConfig := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: newHTTPClient(cfg.timeout()),
	}
	endpoint := DefaultGeminiEndpoint
	if cfg.Endpoint != "" {
		endpoint = strings.TrimSuffix(cfg.Endpoint, "/")
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: endpoint + "/"}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &GeminiService{
		client:   client,
		endpoint: endpoint,
		model:    cfg.Model,
		logger:   logger.Named("llm.gemini"),
	}, nil
}

// Complete generates content for the prompt. A non-empty System is passed
// as the system instruction.
func (s *GeminiService) Complete(ctx context.Context, req *CompletionRequest) (string, error) {
	temperature := float32(req.Temperature)
	genCfg := &genai.GenerateContentConfig{
		Temperature: &temperature,
	}
	if req.CandidateCount > 0 {
		genCfg.CandidateCount = int32(req.CandidateCount)
	}
	if req.MaxOutputTokens > 0 {
		genCfg.MaxOutputTokens = int32(req.MaxOutputTokens)
	}
	if req.System != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	s.logger.Debug("Completion request",
		zap.String("model", s.model),
		zap.Int("prompt_len", len(req.Prompt)),
		zap.Float64("temperature", req.Temperature),
		zap.Int("max_output_tokens", req.MaxOutputTokens))

	start := time.Now()

	res, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(req.Prompt), genCfg)
	if err != nil {
		s.logger.Warn("Completion request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.String("error", logging.SanitizeError(err)))
		return "", withContext(err, s.model, s.endpoint)
	}

	text := res.Text()
	if strings.TrimSpace(text) == "" {
		return "", NewErrorWithContext(ErrorTypeEmpty, "gemini returned empty text", true, apperrors.ErrEmptyCompletion, s.model, s.endpoint, 0)
	}

	s.logger.Debug("Completion request completed",
		zap.Duration("elapsed", time.Since(start)))

	return text, nil
}

// SeparatesRoles is false: prompts are sent as a single combined blob.
func (s *GeminiService) SeparatesRoles() bool {
	return false
}

// GetModel returns the configured model name.
func (s *GeminiService) GetModel() string {
	return s.model
}

// GetEndpoint returns the configured endpoint.
func (s *GeminiService) GetEndpoint() string {
	return s.endpoint
}
