package dataset

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ekaya-inc/ekaya-dialoggen/pkg/models"
)

// Sink receives every accepted example.
type Sink interface {
	Write(ctx context.Context, ex *models.DatasetExample) error
	Close() error
}

// MultiSink fans each example out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, ex *models.DatasetExample) error {
	for _, s := range m {
		if err := s.Write(ctx, ex); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and joins their errors.
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// jsonLines writes one compact JSON value per line.
type jsonLines struct {
	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
}

func createJSONLines(path string) (*jsonLines, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	buf := bufio.NewWriter(f)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return &jsonLines{file: f, buf: buf, enc: enc}, nil
}

func (j *jsonLines) encode(v any) error {
	if err := j.enc.Encode(v); err != nil {
		return fmt.Errorf("write %s: %w", j.file.Name(), err)
	}
	return nil
}

func (j *jsonLines) close() error {
	if err := j.buf.Flush(); err != nil {
		j.file.Close()
		return fmt.Errorf("flush %s: %w", j.file.Name(), err)
	}
	return j.file.Close()
}

// writeJSONFile writes v as indented JSON to path.
func writeJSONFile(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
