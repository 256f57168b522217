package dataset

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/ekaya-dialoggen/pkg/models"
)

// ExampleStore persists examples. repositories.DatasetExampleRepository
// implements it over PostgreSQL.
type ExampleStore interface {
	Save(ctx context.Context, ex *models.DatasetExample) error
}

// PostgresSink saves each example through an ExampleStore.
type PostgresSink struct {
	store ExampleStore
}

// NewPostgresSink wraps store.
func NewPostgresSink(store ExampleStore) *PostgresSink {
	return &PostgresSink{store: store}
}

func (s *PostgresSink) Write(ctx context.Context, ex *models.DatasetExample) error {
	if err := s.store.Save(ctx, ex); err != nil {
		return fmt.Errorf("save example %s: %w", ex.ID, err)
	}
	return nil
}

// Close is a no-op; the caller owns the connection pool.
func (s *PostgresSink) Close() error { return nil }
