package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/foxzi/walink/internal/models"
)

type CursorRepository struct {
	db DBTX
}

func NewCursorRepository(db DBTX) *CursorRepository {
	return &CursorRepository{db: db}
}

// Get returns the rotation cursor of a group, or nil if none was recorded
func (r *CursorRepository) Get(ctx context.Context, groupID string) (*models.RotationCursor, error) {
	c := &models.RotationCursor{}
	err := r.db.QueryRowContext(ctx,
		"SELECT group_id, agent_id, position, updated_at FROM rotation_cursors WHERE group_id = ?", groupID,
	).Scan(&c.GroupID, &c.AgentID, &c.Position, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rotation cursor: %w", err)
	}
	return c, nil
}

// Set records the last agent served for a group
func (r *CursorRepository) Set(ctx context.Context, groupID, agentID string, position int) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rotation_cursors (group_id, agent_id, position, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(group_id) DO UPDATE SET agent_id = excluded.agent_id, position = excluded.position, updated_at = excluded.updated_at`,
		groupID, agentID, position, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save rotation cursor: %w", err)
	}
	return nil
}
