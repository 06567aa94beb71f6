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

const groupColumns = `g.id, g.name, g.slug, COALESCE(g.message, ''), g.is_active, g.strategy, g.click_count,
	(SELECT COUNT(*) FROM group_agents ga WHERE ga.group_id = g.id), g.created_at, g.updated_at`

type GroupRepository struct {
	db DBTX
}

func NewGroupRepository(db DBTX) *GroupRepository {
	return &GroupRepository{db: db}
}

func scanGroup(s scanner) (*models.Group, error) {
	g := &models.Group{}
	var strategy string
	err := s.Scan(&g.ID, &g.Name, &g.Slug, &g.Message, &g.IsActive, &strategy, &g.ClickCount, &g.AgentCount, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	g.Strategy = models.Strategy(strategy)
	return g, nil
}

// Create validates the input and stores a new group with its members
func (r *GroupRepository) Create(ctx context.Context, in models.GroupInput) (*models.Group, error) {
	if err := in.Normalize(); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	var created *models.Group
	err := withTx(ctx, r.db, func(q DBTX) error {
		now := time.Now().UTC()
		active := true
		if in.IsActive != nil {
			active = *in.IsActive
		}

		_, err := q.ExecContext(ctx, `
			INSERT INTO groups (id, name, slug, message, is_active, strategy, click_count, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
			id, in.Name, in.Slug, in.Message, active, in.Strategy, now, now,
		)
		if isUniqueViolation(err) {
			return fmt.Errorf("group slug %q: %w", in.Slug, ErrConflict)
		}
		if err != nil {
			return fmt.Errorf("failed to create group: %w", err)
		}

		if in.AgentIDs != nil {
			if err := setMembers(ctx, q, id, in.AgentIDs); err != nil {
				return err
			}
		}

		created, err = NewGroupRepository(q).Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Get returns a group by ID with its ordered members
func (r *GroupRepository) Get(ctx context.Context, id string) (*models.Group, error) {
	return r.getWhere(ctx, "g.id = ?", id)
}

// GetBySlug returns a group by its public slug with its ordered members
func (r *GroupRepository) GetBySlug(ctx context.Context, slug string) (*models.Group, error) {
	return r.getWhere(ctx, "g.slug = ?", slug)
}

// SlugExists reports whether a group uses slug, without loading it
func (r *GroupRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM groups WHERE slug = ?", slug).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to look up slug: %w", err)
	}
	return n > 0, nil
}

func (r *GroupRepository) getWhere(ctx context.Context, cond string, arg any) (*models.Group, error) {
	g, err := scanGroup(r.db.QueryRowContext(ctx, "SELECT "+groupColumns+" FROM groups g WHERE "+cond, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	g.Agents, err = r.Members(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Members returns the agents of a group in rotation order, active or not
func (r *GroupRepository) Members(ctx context.Context, groupID string) ([]models.Agent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+agentColumns+`
		FROM group_agents ga
		JOIN agents a ON a.id = ga.agent_id
		WHERE ga.group_id = ?
		ORDER BY ga.position, a.id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group members: %w", err)
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

// List returns all groups ordered by name, without members
func (r *GroupRepository) List(ctx context.Context) ([]models.Group, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+groupColumns+" FROM groups g ORDER BY g.name, g.id")
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	groups := []models.Group{}
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, *g)
	}
	return groups, rows.Err()
}

// Update replaces the writable fields of a group. Members are replaced only
// when AgentIDs is set.
func (r *GroupRepository) Update(ctx context.Context, id string, in models.GroupInput) (*models.Group, error) {
	if err := in.Normalize(); err != nil {
		return nil, err
	}

	var updated *models.Group
	err := withTx(ctx, r.db, func(q DBTX) error {
		current, err := NewGroupRepository(q).Get(ctx, id)
		if err != nil {
			return err
		}
		active := current.IsActive
		if in.IsActive != nil {
			active = *in.IsActive
		}

		_, err = q.ExecContext(ctx, `
			UPDATE groups SET name = ?, slug = ?, message = ?, strategy = ?, is_active = ?, updated_at = ?
			WHERE id = ?`,
			in.Name, in.Slug, in.Message, in.Strategy, active, time.Now().UTC(), id,
		)
		if isUniqueViolation(err) {
			return fmt.Errorf("group slug %q: %w", in.Slug, ErrConflict)
		}
		if err != nil {
			return fmt.Errorf("failed to update group: %w", err)
		}

		if in.AgentIDs != nil {
			if err := setMembers(ctx, q, id, in.AgentIDs); err != nil {
				return err
			}
		}

		updated, err = NewGroupRepository(q).Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SetAgents replaces the ordered membership of a group
func (r *GroupRepository) SetAgents(ctx context.Context, id string, agentIDs []string) (*models.Group, error) {
	var updated *models.Group
	err := withTx(ctx, r.db, func(q DBTX) error {
		var exists int
		err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM groups WHERE id = ?", id).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to get group: %w", err)
		}
		if exists == 0 {
			return ErrNotFound
		}

		if err := setMembers(ctx, q, id, agentIDs); err != nil {
			return err
		}
		_, err = q.ExecContext(ctx, "UPDATE groups SET updated_at = ? WHERE id = ?", time.Now().UTC(), id)
		if err != nil {
			return fmt.Errorf("failed to update group: %w", err)
		}

		updated, err = NewGroupRepository(q).Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func setMembers(ctx context.Context, q DBTX, groupID string, agentIDs []string) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM group_agents WHERE group_id = ?", groupID); err != nil {
		return fmt.Errorf("failed to clear group members: %w", err)
	}

	seen := make(map[string]bool, len(agentIDs))
	position := 0
	for _, agentID := range agentIDs {
		if seen[agentID] {
			continue
		}
		seen[agentID] = true

		var exists int
		if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM agents WHERE id = ?", agentID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check agent: %w", err)
		}
		if exists == 0 {
			return &models.ValidationError{Field: "agentIds", Message: fmt.Sprintf("unknown agent %q", agentID)}
		}

		_, err := q.ExecContext(ctx,
			"INSERT INTO group_agents (group_id, agent_id, position) VALUES (?, ?, ?)",
			groupID, agentID, position,
		)
		if err != nil {
			return fmt.Errorf("failed to add group member: %w", err)
		}
		position++
	}
	return nil
}

// Delete removes a group, its memberships, cursor and click history
func (r *GroupRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM groups WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	return notFoundIfNone(res)
}

// ToggleActive flips the group's active flag. Member agents are untouched.
func (r *GroupRepository) ToggleActive(ctx context.Context, id string) (*models.Group, error) {
	var toggled *models.Group
	err := withTx(ctx, r.db, func(q DBTX) error {
		res, err := q.ExecContext(ctx,
			"UPDATE groups SET is_active = NOT is_active, updated_at = ? WHERE id = ?",
			time.Now().UTC(), id,
		)
		if err != nil {
			return fmt.Errorf("failed to toggle group: %w", err)
		}
		if err := notFoundIfNone(res); err != nil {
			return err
		}
		toggled, err = NewGroupRepository(q).Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return toggled, nil
}
