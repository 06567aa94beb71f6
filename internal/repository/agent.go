package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/foxzi/walink/internal/models"
	"github.com/google/uuid"
)

const agentColumns = `a.id, a.name, a.phone, COALESCE(a.message, ''), a.weight, a.is_active, a.click_count, a.created_at, a.updated_at`

type AgentRepository struct {
	db DBTX
}

func NewAgentRepository(db DBTX) *AgentRepository {
	return &AgentRepository{db: db}
}

func scanAgent(s scanner) (*models.Agent, error) {
	a := &models.Agent{}
	err := s.Scan(&a.ID, &a.Name, &a.Phone, &a.Message, &a.Weight, &a.IsActive, &a.ClickCount, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Create validates the input and stores a new agent
func (r *AgentRepository) Create(ctx context.Context, in models.AgentInput) (*models.Agent, error) {
	if err := in.Normalize(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	a := &models.Agent{
		ID:        uuid.New().String(),
		Name:      in.Name,
		Phone:     in.Phone,
		Message:   in.Message,
		Weight:    in.Weight,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.IsActive != nil {
		a.IsActive = *in.IsActive
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO agents (id, name, phone, message, weight, is_active, click_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		a.ID, a.Name, a.Phone, a.Message, a.Weight, a.IsActive, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}
	return a, nil
}

// Get returns an agent by ID
func (r *AgentRepository) Get(ctx context.Context, id string) (*models.Agent, error) {
	a, err := scanAgent(r.db.QueryRowContext(ctx, "SELECT "+agentColumns+" FROM agents a WHERE a.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return a, nil
}

// List returns all agents ordered by name
func (r *AgentRepository) List(ctx context.Context) ([]models.Agent, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+agentColumns+" FROM agents a ORDER BY a.name, a.id")
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	agents := []models.Agent{}
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *a)
	}
	return agents, rows.Err()
}

// Update replaces the writable fields of an agent. A nil IsActive keeps the
// current status.
func (r *AgentRepository) Update(ctx context.Context, id string, in models.AgentInput) (*models.Agent, error) {
	if err := in.Normalize(); err != nil {
		return nil, err
	}

	var updated *models.Agent
	err := withTx(ctx, r.db, func(q DBTX) error {
		current, err := NewAgentRepository(q).Get(ctx, id)
		if err != nil {
			return err
		}
		active := current.IsActive
		if in.IsActive != nil {
			active = *in.IsActive
		}

		_, err = q.ExecContext(ctx, `
			UPDATE agents SET name = ?, phone = ?, message = ?, weight = ?, is_active = ?, updated_at = ?
			WHERE id = ?`,
			in.Name, in.Phone, in.Message, in.Weight, active, time.Now().UTC(), id,
		)
		if err != nil {
			return fmt.Errorf("failed to update agent: %w", err)
		}

		updated, err = NewAgentRepository(q).Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes an agent and its group memberships
func (r *AgentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM agents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete agent: %w", err)
	}
	return notFoundIfNone(res)
}

// ToggleActive flips the active flag and returns the updated agent
func (r *AgentRepository) ToggleActive(ctx context.Context, id string) (*models.Agent, error) {
	var toggled *models.Agent
	err := withTx(ctx, r.db, func(q DBTX) error {
		res, err := q.ExecContext(ctx,
			"UPDATE agents SET is_active = NOT is_active, updated_at = ? WHERE id = ?",
			time.Now().UTC(), id,
		)
		if err != nil {
			return fmt.Errorf("failed to toggle agent: %w", err)
		}
		if err := notFoundIfNone(res); err != nil {
			return err
		}
		toggled, err = NewAgentRepository(q).Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return toggled, nil
}
