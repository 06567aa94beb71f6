package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/foxzi/walink/internal/models"
)

func TestSettingsRepository_GetCreatesDefault(t *testing.T) {
	database := setupTestDB(t)
	repo := NewSettingsRepository(database, models.StrategyRoundRobin)
	ctx := context.Background()

	first, err := repo.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if first.Strategy != models.StrategyRoundRobin {
		t.Errorf("Strategy = %q, want round-robin", first.Strategy)
	}
	if first.ID != 1 {
		t.Errorf("ID = %d, want 1", first.ID)
	}

	second, err := repo.Get(ctx)
	if err != nil {
		t.Fatalf("second Get() error = %v", err)
	}
	if second.Strategy != first.Strategy || !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("second Get() = %+v, want %+v", second, first)
	}

	var count int
	if err := database.QueryRow("SELECT COUNT(*) FROM rotation_settings").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("rows = %d, want 1", count)
	}
}

func TestSettingsRepository_ConfiguredDefault(t *testing.T) {
	database := setupTestDB(t)

	rs, err := NewSettingsRepository(database, models.StrategyWeighted).Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rs.Strategy != models.StrategyWeighted {
		t.Errorf("Strategy = %q, want weighted", rs.Strategy)
	}

	// Invalid defaults fall back to round-robin
	repo := NewSettingsRepository(setupTestDB(t), models.Strategy("bogus"))
	rs, err = repo.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rs.Strategy != models.StrategyRoundRobin {
		t.Errorf("Strategy = %q, want round-robin", rs.Strategy)
	}
}

func TestSettingsRepository_SetThenGet(t *testing.T) {
	repo := NewSettingsRepository(setupTestDB(t), models.StrategyRoundRobin)
	ctx := context.Background()

	for _, s := range models.Strategies {
		saved, err := repo.Set(ctx, string(s))
		if err != nil {
			t.Fatalf("Set(%q) error = %v", s, err)
		}
		if saved.Strategy != s {
			t.Errorf("Set(%q) returned %q", s, saved.Strategy)
		}

		got, err := repo.Get(ctx)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Strategy != s {
			t.Errorf("Get() after Set(%q) = %q", s, got.Strategy)
		}
	}
}

func TestSettingsRepository_SetInvalidKeepsPrevious(t *testing.T) {
	repo := NewSettingsRepository(setupTestDB(t), models.StrategyRoundRobin)
	ctx := context.Background()

	if _, err := repo.Set(ctx, "random"); err != nil {
		t.Fatalf("Set(random) error = %v", err)
	}

	for _, bad := range []string{"", "fastest", "Round-Robin"} {
		_, err := repo.Set(ctx, bad)
		var verr *models.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("Set(%q) error = %v, want ValidationError", bad, err)
		}
	}

	got, err := repo.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Strategy != models.StrategyRandom {
		t.Errorf("Strategy = %q, want random", got.Strategy)
	}
}

func TestSettingsRepository_ConcurrentAccess(t *testing.T) {
	database := setupTestDB(t)
	repo := NewSettingsRepository(database, models.StrategyRoundRobin)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := repo.Get(ctx)
			errs <- err
		}()
		go func(i int) {
			defer wg.Done()
			_, err := repo.Set(ctx, string(models.Strategies[i%len(models.Strategies)]))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent access error = %v", err)
		}
	}

	var count int
	if err := database.QueryRow("SELECT COUNT(*) FROM rotation_settings").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("rows = %d, want 1", count)
	}
}
