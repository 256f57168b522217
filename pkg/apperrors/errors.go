package apperrors

import "errors"

var (
	ErrMissingSection         = errors.New("missing section")
	ErrMalformedJSON          = errors.New("malformed json")
	ErrDegenerateConversation = errors.New("degenerate conversation")
	ErrUnknownProvider        = errors.New("unknown provider")
	ErrEmptyCompletion        = errors.New("empty completion")
	ErrInvalidScenarioCatalog = errors.New("invalid scenario catalog")
)
