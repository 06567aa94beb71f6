package repository

import (
	"context"
	"fmt"

	"github.com/foxzi/walink/internal/models"
)

type InventoryRepository struct {
	db DBTX
}

func NewInventoryRepository(db DBTX) *InventoryRepository {
	return &InventoryRepository{db: db}
}

// Inventory counts groups, agents and stored click events
func (r *InventoryRepository) Inventory(ctx context.Context) (*models.Inventory, error) {
	inv := &models.Inventory{}
	err := r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM groups),
			(SELECT COUNT(*) FROM groups WHERE is_active = 1),
			(SELECT COUNT(*) FROM agents),
			(SELECT COUNT(*) FROM agents WHERE is_active = 1),
			(SELECT COUNT(*) FROM click_events)`,
	).Scan(&inv.Groups, &inv.ActiveGroups, &inv.Agents, &inv.ActiveAgents, &inv.ClickEvents)
	if err != nil {
		return nil, fmt.Errorf("failed to count inventory: %w", err)
	}
	return inv, nil
}
