package llm

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CallRecord is one completion exchange as seen by a RecordingService.
type CallRecord struct {
	ID              uuid.UUID
	Context         map[string]any // Values attached with WithContext
	Model           string
	Endpoint        string
	System          string
	Prompt          string
	Temperature     float64
	MaxOutputTokens int
	Response        string
	ErrorMessage    string
	StartedAt       time.Time
	Duration        time.Duration
}

// Failed reports whether the call returned an error.
func (r *CallRecord) Failed() bool {
	return r.ErrorMessage != ""
}

// CallRecorder receives every recorded exchange. Recording is best-effort:
// implementations log their own failures and never fail the call.
type CallRecorder interface {
	RecordRequest(rec *CallRecord)
	RecordResult(rec *CallRecord)
}

// RecordingService wraps a CompletionService to record all calls.
type RecordingService struct {
	inner    CompletionService
	recorder CallRecorder
	now      func() time.Time
}

// NewRecordingService creates a new recording wrapper around a CompletionService.
func NewRecordingService(inner CompletionService, recorder CallRecorder) *RecordingService {
	return &RecordingService{
		inner:    inner,
		recorder: recorder,
		now:      time.Now,
	}
}

// Complete calls the inner service, recording the request before the call
// and the response or error after it.
func (s *RecordingService) Complete(ctx context.Context, req *CompletionRequest) (string, error) {
	rec := &CallRecord{
		ID:              uuid.New(),
		Context:         GetContext(ctx),
		Model:           s.inner.GetModel(),
		Endpoint:        s.inner.GetEndpoint(),
		System:          req.System,
		Prompt:          req.Prompt,
		Temperature:     req.Temperature,
		MaxOutputTokens: req.MaxOutputTokens,
		StartedAt:       s.now(),
	}
	s.recorder.RecordRequest(rec)

	text, err := s.inner.Complete(ctx, req)

	rec.Duration = s.now().Sub(rec.StartedAt)
	if err != nil {
		rec.ErrorMessage = err.Error()
	} else {
		rec.Response = text
	}
	s.recorder.RecordResult(rec)

	return text, err
}

// SeparatesRoles returns the inner service's mode.
func (s *RecordingService) SeparatesRoles() bool {
	return s.inner.SeparatesRoles()
}

// GetModel returns the inner service's model.
func (s *RecordingService) GetModel() string {
	return s.inner.GetModel()
}

// GetEndpoint returns the inner service's endpoint.
func (s *RecordingService) GetEndpoint() string {
	return s.inner.GetEndpoint()
}
