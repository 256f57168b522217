// Package repositories provides PostgreSQL data access for generated
// dataset examples.
package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-dialoggen/pkg/database"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/models"
)

// ErrExampleNotFound is returned by GetByID for an unknown id.
var ErrExampleNotFound = errors.New("dataset example not found")

// DatasetExampleRepository provides data access for accepted examples.
type DatasetExampleRepository interface {
	Save(ctx context.Context, ex *models.DatasetExample) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.DatasetExample, error)
	ListByKind(ctx context.Context, kind string, limit int) ([]*models.DatasetExample, error)
	Count(ctx context.Context) (int, error)
	CountByKind(ctx context.Context) (map[string]int, error)
}

type datasetExampleRepository struct {
	db *database.DB
}

// NewDatasetExampleRepository creates a new DatasetExampleRepository.
func NewDatasetExampleRepository(db *database.DB) DatasetExampleRepository {
	return &datasetExampleRepository{db: db}
}

var _ DatasetExampleRepository = (*datasetExampleRepository)(nil)

const exampleColumns = `id, sequence, scenario_kind, context, intent, messages, turns, created_at`

// Save inserts ex. Saving the same id twice is a no-op; examples are
// immutable once written.
func (r *datasetExampleRepository) Save(ctx context.Context, ex *models.DatasetExample) error {
	if ex.ID == uuid.Nil {
		ex.ID = uuid.New()
	}

	messagesJSON, err := json.Marshal(ex.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}
	turns := ex.Turns
	if turns == nil {
		turns = []models.TurnRecord{}
	}
	turnsJSON, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("failed to marshal turns: %w", err)
	}

	query := `
		INSERT INTO dataset_examples (` + exampleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	_, err = r.db.Exec(ctx, query,
		ex.ID, ex.Sequence, ex.ScenarioKind, ex.Context, ex.Intent,
		messagesJSON, turnsJSON, ex.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save dataset example: %w", err)
	}
	return nil
}

func (r *datasetExampleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DatasetExample, error) {
	query := `SELECT ` + exampleColumns + ` FROM dataset_examples WHERE id = $1`

	ex, err := scanExample(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrExampleNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset example: %w", err)
	}
	return ex, nil
}

// ListByKind returns the most recent examples of a scenario kind, newest
// first. A limit of 0 or less returns all of them.
func (r *datasetExampleRepository) ListByKind(ctx context.Context, kind string, limit int) ([]*models.DatasetExample, error) {
	query := `
		SELECT ` + exampleColumns + `
		FROM dataset_examples
		WHERE scenario_kind = $1
		ORDER BY created_at DESC, sequence DESC`
	args := []any{kind}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list dataset examples: %w", err)
	}
	defer rows.Close()

	var examples []*models.DatasetExample
	for rows.Next() {
		ex, err := scanExample(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dataset example: %w", err)
		}
		examples = append(examples, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate dataset examples: %w", err)
	}
	return examples, nil
}

func (r *datasetExampleRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM dataset_examples`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count dataset examples: %w", err)
	}
	return n, nil
}

func (r *datasetExampleRepository) CountByKind(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.Query(ctx, `
		SELECT scenario_kind, COUNT(*)
		FROM dataset_examples
		GROUP BY scenario_kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to count dataset examples by kind: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan kind count: %w", err)
		}
		counts[kind] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate kind counts: %w", err)
	}
	return counts, nil
}

func scanExample(row pgx.Row) (*models.DatasetExample, error) {
	var ex models.DatasetExample
	var messagesJSON, turnsJSON []byte

	if err := row.Scan(&ex.ID, &ex.Sequence, &ex.ScenarioKind, &ex.Context, &ex.Intent,
		&messagesJSON, &turnsJSON, &ex.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(messagesJSON, &ex.Messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
	}
	if err := json.Unmarshal(turnsJSON, &ex.Turns); err != nil {
		return nil, fmt.Errorf("failed to unmarshal turns: %w", err)
	}
	if len(ex.Turns) == 0 {
		ex.Turns = nil
	}
	return &ex, nil
}
