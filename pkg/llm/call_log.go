package llm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dialoggen/pkg/logging"
)

// FileCallRecorder writes one request file and one response (or error) file
// per completion call into a directory, for offline inspection of prompts.
type FileCallRecorder struct {
	dir    string
	logger *zap.Logger
}

// NewFileCallRecorder creates dir if needed.
func NewFileCallRecorder(dir string, logger *zap.Logger) (*FileCallRecorder, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create call log directory %s: %w", dir, err)
	}
	return &FileCallRecorder{
		dir:    dir,
		logger: logger.Named("call_log"),
	}, nil
}

// Dir returns the directory files are written to.
func (r *FileCallRecorder) Dir() string {
	return r.dir
}

// RecordRequest writes <prefix>_request.txt before the call.
func (r *FileCallRecorder) RecordRequest(rec *CallRecord) {
	content := fmt.Sprintf(`================================================================================
TIMESTAMP: %s
MODEL: %s
CALL_ID: %s
%sTYPE: REQUEST
TEMPERATURE: %g
MAX_OUTPUT_TOKENS: %d
================================================================================

=== SYSTEM MESSAGE ===
%s

=== PROMPT ===
%s
`,
		rec.StartedAt.Format(time.RFC3339),
		rec.Model,
		rec.ID.String(),
		formatContextLines(rec.Context),
		rec.Temperature,
		rec.MaxOutputTokens,
		rec.System,
		rec.Prompt,
	)
	r.write(rec, "request", content)
}

// RecordResult writes <prefix>_response.txt or <prefix>_error.txt after the call.
func (r *FileCallRecorder) RecordResult(rec *CallRecord) {
	kind := "response"
	body := rec.Response
	if rec.Failed() {
		kind = "error"
		body = logging.SanitizeError(errors.New(rec.ErrorMessage))
	}

	content := fmt.Sprintf(`================================================================================
TIMESTAMP: %s
MODEL: %s
CALL_ID: %s
TYPE: %s
DURATION: %dms
================================================================================

%s
`,
		rec.StartedAt.Add(rec.Duration).Format(time.RFC3339),
		rec.Model,
		rec.ID.String(),
		strings.ToUpper(kind),
		rec.Duration.Milliseconds(),
		body,
	)
	r.write(rec, kind, content)
}

func (r *FileCallRecorder) write(rec *CallRecord, kind, content string) {
	filename := fmt.Sprintf("%s_%s_%s.txt", rec.StartedAt.Format("2006-01-02_15-04-05.000"), rec.ID.String(), kind)
	fpath := filepath.Join(r.dir, filename)
	if err := os.WriteFile(fpath, []byte(content), 0644); err != nil {
		r.logger.Warn("Failed to write call log file",
			zap.String("path", fpath),
			zap.Error(err))
	}
}

// formatContextLines renders context values as sorted "KEY: value" lines.
func formatContextLines(values map[string]any) string {
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\n", strings.ToUpper(k), values[k])
	}
	return b.String()
}
