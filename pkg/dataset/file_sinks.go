package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ekaya-inc/ekaya-dialoggen/pkg/models"
)

// JSONLSink writes fine-tuning rows ({memory, user_input, output}).
type JSONLSink struct {
	out  *jsonLines
	rows int
}

// NewJSONLSink creates (or truncates) the JSONL file at path.
func NewJSONLSink(path string) (*JSONLSink, error) {
	out, err := createJSONLines(path)
	if err != nil {
		return nil, err
	}
	return &JSONLSink{out: out}, nil
}

func (s *JSONLSink) Write(_ context.Context, ex *models.DatasetExample) error {
	for _, row := range FineTuneRows(ex) {
		if err := s.out.encode(row); err != nil {
			return err
		}
		s.rows++
	}
	return nil
}

func (s *JSONLSink) Close() error { return s.out.close() }

// Rows returns the number of rows written.
func (s *JSONLSink) Rows() int { return s.rows }

// ConversationFileSink writes one conversa_<n>.json file per example.
type ConversationFileSink struct {
	dir string
}

// NewConversationFileSink creates dir if needed.
func NewConversationFileSink(dir string) (*ConversationFileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create conversation directory: %w", err)
	}
	return &ConversationFileSink{dir: dir}, nil
}

func (s *ConversationFileSink) Write(_ context.Context, ex *models.DatasetExample) error {
	path := filepath.Join(s.dir, fmt.Sprintf("conversa_%d.json", ex.Sequence))
	return writeJSONFile(path, models.NewConversationFile(ex))
}

func (s *ConversationFileSink) Close() error { return nil }

// WriteConversationFile writes ex as a single rich conversation file.
func WriteConversationFile(path string, ex *models.DatasetExample) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create conversation directory: %w", err)
	}
	return writeJSONFile(path, models.NewConversationFile(ex))
}

// ShareGPT chat-format roles.
const (
	shareGPTSystem = "system"
	shareGPTHuman  = "human"
	shareGPTGPT    = "gpt"
)

type shareGPTMessage struct {
	From  string `json:"from"`
	Value string `json:"value"`
}

type shareGPTRow struct {
	Conversations []shareGPTMessage `json:"conversations"`
	Source        string            `json:"source"`
	Score         float64           `json:"score"`
}

// ShareGPTSink writes one chat-format row per exchange: the seller's
// system prompt, the buyer's question, and the seller's reply.
type ShareGPTSink struct {
	out *jsonLines

	// DefaultSystem is used when the seller prompt was not recorded.
	DefaultSystem string
}

// NewShareGPTSink creates (or truncates) the JSONL file at path.
func NewShareGPTSink(path, defaultSystem string) (*ShareGPTSink, error) {
	out, err := createJSONLines(path)
	if err != nil {
		return nil, err
	}
	return &ShareGPTSink{out: out, DefaultSystem: defaultSystem}, nil
}

func (s *ShareGPTSink) Write(_ context.Context, ex *models.DatasetExample) error {
	for _, x := range exchanges(ex.Dialog()) {
		if !x.trainable() {
			continue
		}
		system := x.answer.SystemPrompt
		if system == "" {
			system = s.DefaultSystem
		}
		row := shareGPTRow{
			Conversations: []shareGPTMessage{
				{From: shareGPTSystem, Value: system},
				{From: shareGPTHuman, Value: x.question.ResponseText},
				{From: shareGPTGPT, Value: x.answer.ResponseText},
			},
			Source: "auto-generated",
			Score:  5.0,
		}
		if err := s.out.encode(row); err != nil {
			return err
		}
	}
	return nil
}

func (s *ShareGPTSink) Close() error { return s.out.close() }

// ReadableSink writes each fine-tuning row as a numbered plain-text file
// for manual review.
type ReadableSink struct {
	dir  string
	next int
}

// NewReadableSink creates dir if needed. Files are numbered from 1.
func NewReadableSink(dir string) (*ReadableSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create examples directory: %w", err)
	}
	return &ReadableSink{dir: dir, next: 1}, nil
}

func (s *ReadableSink) Write(_ context.Context, ex *models.DatasetExample) error {
	for _, row := range FineTuneRows(ex) {
		var b strings.Builder
		b.WriteString("MEMÓRIA:\n" + row.Memory + "\n\n")
		b.WriteString("INPUT DO USUÁRIO:\n" + row.UserInput + "\n\n")
		b.WriteString("OUTPUT DO ASSISTENTE:\n" + row.Output + "\n")

		path := filepath.Join(s.dir, fmt.Sprintf("exemplo_%d.txt", s.next))
		if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		s.next++
	}
	return nil
}

func (s *ReadableSink) Close() error { return nil }
