//go:build integration

package testhelpers

import (
	"context"
	"testing"
)

func TestTestDB_MigrationsApplied(t *testing.T) {
	testDB := GetTestDB(t)

	ctx := context.Background()

	var exists bool
	err := testDB.DB.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'dataset_examples')").
		Scan(&exists)
	if err != nil {
		t.Fatalf("failed to query schema: %v", err)
	}
	if !exists {
		t.Fatal("expected dataset_examples table to exist")
	}

	var version int
	var dirty bool
	if err := testDB.DB.QueryRow(ctx, "SELECT version, dirty FROM schema_migrations").Scan(&version, &dirty); err != nil {
		t.Fatalf("failed to read schema_migrations: %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("expected clean version 1, got version %d dirty=%v", version, dirty)
	}
}
