package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dialoggen/pkg/apperrors"
)

// Provider names accepted by NewService.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

const defaultTimeout = 60 * time.Second

// Config holds configuration for creating a completion service.
type Config struct {
	Provider string        // openai, anthropic or gemini
	Endpoint string        // Base URL; empty uses the provider's public endpoint
	Model    string        // Model name, e.g. "gemini-2.0-flash"
	APIKey   string        // Optional for local OpenAI-compatible endpoints
	Timeout  time.Duration // Per-request HTTP timeout
}

func (c *Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultTimeout
	}
	return c.Timeout
}

// NewService creates the adapter for cfg.Provider.
// If recorder is non-nil, the service is wrapped to record every call.
func NewService(ctx context.Context, cfg *Config, recorder CallRecorder, logger *zap.Logger) (CompletionService, error) {
	var (
		svc CompletionService
		err error
	)

	switch cfg.Provider {
	case ProviderOpenAI:
		svc, err = NewOpenAIService(cfg, logger)
	case ProviderAnthropic:
		svc, err = NewAnthropicService(cfg, logger)
	case ProviderGemini:
		svc, err = NewGeminiService(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownProvider, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s service: %w", cfg.Provider, err)
	}

	logger.Named("llm").Info("Completion service ready",
		zap.String("provider", cfg.Provider),
		zap.String("model", svc.GetModel()),
		zap.String("endpoint", svc.GetEndpoint()),
		zap.Bool("separates_roles", svc.SeparatesRoles()))

	// Wrap with recording if enabled
	if recorder != nil {
		return NewRecordingService(svc, recorder), nil
	}

	return svc, nil
}
