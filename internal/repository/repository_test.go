package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/foxzi/walink/internal/db"
	"github.com/foxzi/walink/internal/models"
)

// setupTestDB creates a file-backed SQLite database with all migrations applied
func setupTestDB(t *testing.T) *db.DB {
	t.Helper()

	database, err := db.New(filepath.Join(t.TempDir(), "walink.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := database.Migrate(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return database
}

func createAgent(t *testing.T, repo *AgentRepository, name, phone string) *models.Agent {
	t.Helper()
	a, err := repo.Create(context.Background(), models.AgentInput{Name: name, Phone: phone})
	if err != nil {
		t.Fatalf("Create agent %s: %v", name, err)
	}
	return a
}

func createGroup(t *testing.T, repo *GroupRepository, name string, agentIDs ...string) *models.Group {
	t.Helper()
	g, err := repo.Create(context.Background(), models.GroupInput{Name: name, AgentIDs: agentIDs})
	if err != nil {
		t.Fatalf("Create group %s: %v", name, err)
	}
	return g
}

func boolPtr(b bool) *bool {
	return &b
}
