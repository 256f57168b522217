package dataset

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ekaya-inc/ekaya-dialoggen/pkg/models"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/structured"
)

// MaxInvalidReported bounds Analysis.Invalid.
const MaxInvalidReported = 10

// maxRowBytes is the longest JSONL line Analyze accepts.
const maxRowBytes = 4 << 20

// InvalidRow names a rejected row by its 1-based line number.
type InvalidRow struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// LineStats summarizes how many transcript lines the memory field holds.
type LineStats struct {
	Min int     `json:"min"`
	Max int     `json:"max"`
	Avg float64 `json:"avg"`
}

// Analysis is the QA summary of a fine-tuning JSONL file.
type Analysis struct {
	Rows            int            `json:"rows"`
	Valid           int            `json:"valid"`
	DecodeErrors    int            `json:"decode_errors"`
	InvalidCount    int            `json:"invalid_count"`
	Invalid         []InvalidRow   `json:"invalid,omitempty"`
	FieldCoverage   map[string]int `json:"field_coverage"`
	UnknownFields   map[string]int `json:"unknown_fields,omitempty"`
	Memory          LineStats      `json:"memory_lines"`
	ReadyForListing int            `json:"ready_for_listing"`
	HandoffMismatch int            `json:"handoff_mismatch"`
}

// ValidPercent returns the share of valid rows, 0 for an empty file.
func (a *Analysis) ValidPercent() float64 {
	if a.Rows == 0 {
		return 0
	}
	return float64(a.Valid) / float64(a.Rows) * 100
}

// Analyze reads fine-tuning rows from r and reports their validity and
// field coverage. Blank lines are skipped; undecodable lines count as rows
// and as invalid. An error is returned only when r cannot be read.
func Analyze(r io.Reader) (*Analysis, error) {
	a := &Analysis{
		FieldCoverage: make(map[string]int),
		UnknownFields: make(map[string]int),
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxRowBytes)

	var parsed []structured.ParsedOutput
	memoryTotal := 0
	memoryRows := 0
	line := 0

	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		a.Rows++

		var fields map[string]json.RawMessage
		if err := json.Unmarshal([]byte(text), &fields); err != nil {
			a.DecodeErrors++
			a.reject(line, fmt.Sprintf("invalid JSON line: %v", err))
			continue
		}
		if reason := missingField(fields); reason != "" {
			a.reject(line, reason)
			continue
		}

		var row models.FineTuneRow
		if err := json.Unmarshal([]byte(text), &row); err != nil {
			a.reject(line, fmt.Sprintf("invalid field type: %v", err))
			continue
		}

		n := memoryLines(row.Memory)
		if memoryRows == 0 || n < a.Memory.Min {
			a.Memory.Min = n
		}
		if n > a.Memory.Max {
			a.Memory.Max = n
		}
		memoryTotal += n
		memoryRows++

		out, err := structured.Parse(row.Output)
		if err != nil {
			var verr *structured.ValidationError
			if errors.As(err, &verr) {
				a.reject(line, fmt.Sprintf("ActionInput is not valid JSON: %s", verr.Raw))
			} else {
				a.reject(line, err.Error())
			}
			continue
		}

		a.Valid++
		parsed = append(parsed, *out)
		for _, f := range out.ActionInput.UnknownFields() {
			a.UnknownFields[f]++
		}
		check := structured.CheckHandoff(out)
		if check.Ready {
			a.ReadyForListing++
		}
		if !check.Consistent() {
			a.HandoffMismatch++
		}
	}
	if err := scanner.Err(); err != nil {
		return a, fmt.Errorf("read dataset: %w", err)
	}

	a.FieldCoverage = structured.FieldCoverage(parsed)
	if memoryRows > 0 {
		a.Memory.Avg = float64(memoryTotal) / float64(memoryRows)
	}
	return a, nil
}

func (a *Analysis) reject(line int, reason string) {
	a.InvalidCount++
	if len(a.Invalid) < MaxInvalidReported {
		a.Invalid = append(a.Invalid, InvalidRow{Line: line, Reason: reason})
	}
}

func missingField(fields map[string]json.RawMessage) string {
	for _, name := range []string{"memory", "user_input", "output"} {
		if _, ok := fields[name]; !ok {
			return "missing field " + name
		}
	}
	return ""
}

func memoryLines(memory string) int {
	if strings.TrimSpace(memory) == "" {
		return 0
	}
	return len(strings.Split(memory, "\n"))
}
