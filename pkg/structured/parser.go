// Package structured parses and validates the five-section output of the
// seller agent:
//
//	Input: <echo of the user's message>
//	Thought: <reasoning>
//	ActionInput: <JSON object>
//	NextAgent: <"ListingAgent" or empty>
//	FinalResponse: <reply to the user>
package structured

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ekaya-inc/ekaya-dialoggen/pkg/apperrors"
)

// Section markers, in required order.
const (
	MarkerInput         = "Input:"
	MarkerThought       = "Thought:"
	MarkerActionInput   = "ActionInput:"
	MarkerNextAgent     = "NextAgent:"
	MarkerFinalResponse = "FinalResponse:"
)

// ListingAgent is the only non-empty NextAgent value.
const ListingAgent = "ListingAgent"

// Sections lists the markers in the order they must appear.
var Sections = []string{
	MarkerInput,
	MarkerThought,
	MarkerActionInput,
	MarkerNextAgent,
	MarkerFinalResponse,
}

var codeFence = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")

// thinkBlock matches reasoning preambles emitted by some self-hosted models.
var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// ParsedOutput is a seller completion split into its five sections.
type ParsedOutput struct {
	Input          string      `json:"input"`
	Thought        string      `json:"thought"`
	RawActionInput string      `json:"raw_action_input"`
	ActionInput    ActionInput `json:"action_input"` // nil when RawActionInput failed validation
	NextAgent      string      `json:"next_agent"`
	FinalResponse  string      `json:"final_response"`
}

// ParseError reports a section marker that is absent or out of order.
type ParseError struct {
	Missing    string // The marker, e.g. "NextAgent:"
	OutOfOrder bool
}

func (e *ParseError) Error() string {
	if e.OutOfOrder {
		return fmt.Sprintf("section %s out of order", e.Missing)
	}
	return fmt.Sprintf("missing section %s", e.Missing)
}

// Unwrap lets errors.Is match apperrors.ErrMissingSection.
func (e *ParseError) Unwrap() error {
	return apperrors.ErrMissingSection
}

type markerOffset struct {
	marker string
	start  int // Offset of the marker itself
}

// Parse splits text into its five sections. It fails with *ParseError naming
// the first absent marker in declaration order, or the first marker found
// out of order. When all sections are present but ActionInput is not a JSON
// object, the parsed sections are returned together with a *ValidationError.
func Parse(text string) (*ParsedOutput, error) {
	text = thinkBlock.ReplaceAllString(text, "")

	offsets := make([]markerOffset, 0, len(Sections))
	for _, marker := range Sections {
		idx := findMarker(text, marker)
		if idx < 0 {
			return nil, &ParseError{Missing: marker}
		}
		offsets = append(offsets, markerOffset{marker: marker, start: idx})
	}

	sort.SliceStable(offsets, func(i, j int) bool {
		return offsets[i].start < offsets[j].start
	})
	for i, off := range offsets {
		if off.marker != Sections[i] {
			return nil, &ParseError{Missing: Sections[i], OutOfOrder: true}
		}
	}

	values := make(map[string]string, len(offsets))
	for i, off := range offsets {
		end := len(text)
		if i+1 < len(offsets) {
			end = offsets[i+1].start
		}
		values[off.marker] = cleanSection(text[off.start+len(off.marker) : end])
	}

	out := &ParsedOutput{
		Input:          values[MarkerInput],
		Thought:        values[MarkerThought],
		RawActionInput: values[MarkerActionInput],
		NextAgent:      values[MarkerNextAgent],
		FinalResponse:  values[MarkerFinalResponse],
	}

	ai, err := ValidateActionInput(out.RawActionInput)
	if err != nil {
		return out, err
	}
	out.ActionInput = ai
	return out, nil
}

// findMarker returns the offset of the first occurrence of marker that is
// not the tail of a longer word, so "Input:" never matches inside
// "ActionInput:".
func findMarker(text, marker string) int {
	from := 0
	for from <= len(text) {
		idx := strings.Index(text[from:], marker)
		if idx < 0 {
			return -1
		}
		idx += from
		if idx == 0 {
			return idx
		}
		prev, _ := utf8.DecodeLastRuneInString(text[:idx])
		if !unicode.IsLetter(prev) && !unicode.IsDigit(prev) {
			return idx
		}
		from = idx + len(marker)
	}
	return -1
}

// cleanSection trims whitespace, code fences and the markdown emphasis left
// around markers such as "**Input:**".
func cleanSection(s string) string {
	s = strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "*"))
	if m := codeFence.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	return strings.TrimSpace(strings.Trim(s, "`"))
}

// Format renders p back into the five-section wire text, with ActionInput
// as compact JSON. Unvalidated ActionInput text is written as received.
func (p *ParsedOutput) Format() string {
	actionInput := p.RawActionInput
	if p.ActionInput != nil {
		actionInput = p.ActionInput.Compact()
	}

	var b strings.Builder
	b.WriteString(MarkerInput + " " + p.Input + "\n")
	b.WriteString(MarkerThought + " " + p.Thought + "\n")
	b.WriteString(MarkerActionInput + " " + actionInput + "\n")
	b.WriteString(MarkerNextAgent + " " + p.NextAgent + "\n")
	b.WriteString(MarkerFinalResponse + " " + p.FinalResponse)
	return b.String()
}

// compactJSON marshals v without HTML escaping and without a trailing newline.
func compactJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "{}"
	}
	return strings.TrimRight(buf.String(), "\n")
}
