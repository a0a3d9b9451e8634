package store

import (
	"context"
	"testing"

	"github.com/erazemk/popis/internal/db"
)

func TestGetJWTSecret_GeneratesAndPersists(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	secret1, err := GetJWTSecret(ctx, database)
	if err != nil {
		t.Fatal(err)
	}
	if len(secret1) != 64 { // 32 bytes = 64 hex chars
		t.Fatalf("expected 64 hex chars, got %d", len(secret1))
	}

	secret2, err := GetJWTSecret(ctx, database)
	if err != nil {
		t.Fatal(err)
	}
	if secret1 != secret2 {
		t.Fatalf("expected same secret, got %q and %q", secret1, secret2)
	}
}

func TestGetOrCreateSettingKeepsFirstValue(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	first, _ := GetOrCreateSetting(ctx, database, "site_name", func() (string, error) { return "Warehouse", nil })
	second, _ := GetOrCreateSetting(ctx, database, "site_name", func() (string, error) { return "Office", nil })

	if first != "Warehouse" || second != "Warehouse" {
		t.Errorf("expected both reads to return 'Warehouse', got %q and %q", first, second)
	}
}
