package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kandev/agentperms/internal/agents/models"
)

// SQLRepository stores agents in SQLite or PostgreSQL through sqlx.
type SQLRepository struct {
	db *sqlx.DB
}

var _ Repository = (*SQLRepository)(nil)

// agentRow mirrors the agents table. tools is a JSON array; NULL means
// the agent declares no tool list.
type agentRow struct {
	ID          string         `db:"id"`
	Name        string         `db:"name"`
	Description string         `db:"description"`
	Provider    string         `db:"provider"`
	Model       string         `db:"model"`
	Author      string         `db:"author"`
	Tools       sql.NullString `db:"tools"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

const agentColumns = `id, name, description, provider, model, author, tools, created_at, updated_at`

// NewSQLRepositoryWithDB creates the repository on an existing connection and
// ensures the schema exists.
func NewSQLRepositoryWithDB(db *sqlx.DB) (*SQLRepository, error) {
	repo := &SQLRepository{db: db}
	if err := repo.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return repo, nil
}

func (r *SQLRepository) initSchema() error {
	timestampType := "DATETIME"
	if r.db.DriverName() == "pgx" {
		timestampType = "TIMESTAMPTZ"
	}
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		provider TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		author TEXT NOT NULL DEFAULT '',
		tools TEXT DEFAULT NULL,
		created_at %[1]s NOT NULL,
		updated_at %[1]s NOT NULL
	)`, timestampType)
	if _, err := r.db.Exec(schema); err != nil {
		return err
	}
	_, err := r.db.Exec(`CREATE INDEX IF NOT EXISTS idx_agents_created_at ON agents(created_at)`)
	return err
}

// DB returns the underlying connection.
func (r *SQLRepository) DB() *sqlx.DB {
	return r.db
}

// Close is a no-op; the connection is owned by whoever opened it.
func (r *SQLRepository) Close() error {
	return nil
}

func (r *SQLRepository) CreateAgent(ctx context.Context, agent *models.Agent) error {
	if agent.ID == "" {
		agent.ID = "agent_" + uuid.New().String()
	}
	now := time.Now().UTC()
	agent.CreatedAt = now
	agent.UpdatedAt = now

	tools, err := encodeTools(agent.Tools)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO agents (`+agentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), agent.ID, agent.Name, agent.Description, agent.Provider, agent.Model, agent.Author, tools, agent.CreatedAt, agent.UpdatedAt)
	return err
}

func (r *SQLRepository) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	var row agentRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`SELECT `+agentColumns+` FROM agents WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAgentNotFound
		}
		return nil, err
	}
	return row.toModel()
}

func (r *SQLRepository) UpdateAgent(ctx context.Context, agent *models.Agent) error {
	agent.UpdatedAt = time.Now().UTC()
	tools, err := encodeTools(agent.Tools)
	if err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE agents SET name = ?, description = ?, provider = ?, model = ?, author = ?, tools = ?, updated_at = ?
		WHERE id = ?
	`), agent.Name, agent.Description, agent.Provider, agent.Model, agent.Author, tools, agent.UpdatedAt, agent.ID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, agent.ID)
	}
	return nil
}

func (r *SQLRepository) DeleteAgent(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM agents WHERE id = ?`), id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	return nil
}

func (r *SQLRepository) ListAgents(ctx context.Context) ([]*models.Agent, error) {
	var rows []agentRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+agentColumns+` FROM agents ORDER BY created_at DESC`); err != nil {
		return nil, err
	}
	result := make([]*models.Agent, 0, len(rows))
	for i := range rows {
		agent, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		result = append(result, agent)
	}
	return result, nil
}

func (row *agentRow) toModel() (*models.Agent, error) {
	agent := &models.Agent{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		Provider:    row.Provider,
		Model:       row.Model,
		Author:      row.Author,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	if row.Tools.Valid {
		tools := []string{}
		if err := json.Unmarshal([]byte(row.Tools.String), &tools); err != nil {
			return nil, fmt.Errorf("decode tools for agent %s: %w", row.ID, err)
		}
		agent.Tools = tools
	}
	return agent, nil
}

func encodeTools(tools []string) (sql.NullString, error) {
	if tools == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(tools)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode tools: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
