package structured

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ekaya-inc/ekaya-dialoggen/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/jsonutil"
)

// ActionInput field vocabulary.
const (
	FieldID             = "id"
	FieldTitle          = "title"
	FieldDescription    = "description"
	FieldBrand          = "brand"
	FieldModel          = "model"
	FieldColor          = "color"
	FieldSalePrice      = "salePrice"
	FieldState          = "state"
	FieldFipePercentage = "fipePercentage"
	FieldFipePrice      = "fipePrice"
)

// KnownFields lists the vocabulary in the order the seller is taught it.
var KnownFields = []string{
	FieldBrand,
	FieldModel,
	FieldColor,
	FieldSalePrice,
	FieldState,
	FieldTitle,
	FieldDescription,
	FieldFipePercentage,
	FieldFipePrice,
	FieldID,
}

var knownFieldSet = func() map[string]bool {
	set := make(map[string]bool, len(KnownFields))
	for _, f := range KnownFields {
		set[f] = true
	}
	return set
}()

// ActionInput is the decoded JSON object of the ActionInput section.
type ActionInput map[string]any

// ValidationError reports an ActionInput section that is not a JSON object,
// even after single-quote repair.
type ValidationError struct {
	Raw   string
	Cause error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("action input is not a JSON object: %v", e.Cause)
}

// Unwrap lets errors.Is match apperrors.ErrMalformedJSON.
func (e *ValidationError) Unwrap() error {
	return apperrors.ErrMalformedJSON
}

// ValidateActionInput decodes raw as a JSON object. An empty section is an
// empty object. If the first decode fails, every single quote is replaced
// with a double quote and the decode is retried once.
func ValidateActionInput(raw string) (ActionInput, error) {
	text := strings.TrimSpace(raw)
	if m := codeFence.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	if text == "" {
		return ActionInput{}, nil
	}

	ai, err := decodeObject(text)
	if err == nil {
		return ai, nil
	}

	repaired := strings.ReplaceAll(text, "'", `"`)
	if ai, rerr := decodeObject(repaired); rerr == nil {
		return ai, nil
	}
	return nil, &ValidationError{Raw: raw, Cause: err}
}

func decodeObject(text string) (ActionInput, error) {
	var ai ActionInput
	if err := json.Unmarshal([]byte(text), &ai); err != nil {
		return nil, err
	}
	if ai == nil {
		// "null" decodes without error.
		return nil, fmt.Errorf("expected object, got null")
	}
	return ai, nil
}

// Value returns field as a trimmed string, or "" when absent or blank.
func (a ActionInput) Value(field string) string {
	v, ok := a[field]
	if !ok {
		return ""
	}
	return jsonutil.FlexibleString(v)
}

// Has reports whether field is present with a non-blank value.
func (a ActionInput) Has(field string) bool {
	return a.Value(field) != ""
}

// UnknownFields returns keys outside the vocabulary, sorted.
func (a ActionInput) UnknownFields() []string {
	var unknown []string
	for k := range a {
		if !knownFieldSet[k] {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	return unknown
}

// Compact renders a as compact JSON with sorted keys.
func (a ActionInput) Compact() string {
	if a == nil {
		return "{}"
	}
	return compactJSON(map[string]any(a))
}

// ReadyForListing reports whether a carries enough to search listings:
// brand or model, plus salePrice and state.
func (a ActionInput) ReadyForListing() bool {
	return (a.Has(FieldBrand) || a.Has(FieldModel)) && a.Has(FieldSalePrice) && a.Has(FieldState)
}

// HandoffCheck compares the declared NextAgent with ActionInput readiness.
type HandoffCheck struct {
	Ready    bool // ActionInput satisfies ReadyForListing
	Declared bool // NextAgent is ListingAgent
}

// Consistent reports whether the declaration matches readiness.
func (h HandoffCheck) Consistent() bool {
	return h.Ready == h.Declared
}

// CheckHandoff evaluates p's NextAgent against its ActionInput.
func CheckHandoff(p *ParsedOutput) HandoffCheck {
	if p == nil {
		return HandoffCheck{}
	}
	return HandoffCheck{
		Ready:    p.ActionInput.ReadyForListing(),
		Declared: p.NextAgent == ListingAgent,
	}
}
