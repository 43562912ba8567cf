package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/shaiso/dagflow/internal/domain"
)

// schema — таблица определений workflow.
const schema = `
	CREATE TABLE IF NOT EXISTS workflows (
		id          TEXT PRIMARY KEY,
		definition  JSONB NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

// DB — подмножество pgxpool.Pool, используемое репозиторием.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// WorkflowRepo — хранилище определений workflow в PostgreSQL.
//
// Реализует store.Source (GetWorkflow, ListWorkflows) и
// api.WorkflowPersister (Upsert).
type WorkflowRepo struct {
	db DB
}

// NewWorkflowRepo создаёт новый WorkflowRepo.
func NewWorkflowRepo(db DB) *WorkflowRepo {
	return &WorkflowRepo{db: db}
}

// EnsureSchema создаёт таблицу workflows, если её нет.
func (r *WorkflowRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create workflows table: %w", err)
	}
	return nil
}

// Upsert сохраняет определение (insert или update по id).
func (r *WorkflowRepo) Upsert(ctx context.Context, def domain.WorkflowDefinition) error {
	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal workflow %s: %w", def.ID, err)
	}

	query := `
		INSERT INTO workflows (id, definition)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE
		SET definition = EXCLUDED.definition,
		    updated_at = now()
	`
	if _, err := r.db.Exec(ctx, query, def.ID, data); err != nil {
		return fmt.Errorf("upsert workflow %s: %w", def.ID, err)
	}
	return nil
}

// GetWorkflow возвращает определение по ID.
func (r *WorkflowRepo) GetWorkflow(ctx context.Context, id string) (*domain.WorkflowDefinition, error) {
	query := `
		SELECT definition
		FROM workflows
		WHERE id = $1
	`
	var data []byte
	err := r.db.QueryRow(ctx, query, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow %s: %w", id, err)
	}

	def, err := decodeDefinition(id, data)
	if err != nil {
		return nil, err
	}
	return &def, nil
}

// ListWorkflows возвращает все определения, отсортированные по ID.
func (r *WorkflowRepo) ListWorkflows(ctx context.Context) ([]domain.WorkflowDefinition, error) {
	query := `
		SELECT id, definition
		FROM workflows
		ORDER BY id
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var defs []domain.WorkflowDefinition
	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}

		def, err := decodeDefinition(id, data)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// decodeDefinition разбирает JSONB колонку definition.
// Пустой id в документе берётся из колонки id.
func decodeDefinition(id string, data []byte) (domain.WorkflowDefinition, error) {
	var def domain.WorkflowDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return domain.WorkflowDefinition{}, fmt.Errorf("%w: %s: %v", ErrCorruptDefinition, id, err)
	}
	if def.ID == "" {
		def.ID = id
	}
	if def.ID != id {
		return domain.WorkflowDefinition{}, fmt.Errorf("%w: %s: document id %q", ErrCorruptDefinition, id, def.ID)
	}
	return def, nil
}
