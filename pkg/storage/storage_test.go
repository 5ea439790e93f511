package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/certen/bounty-governance/pkg/config"
)

// testClient connects to TEST_DATABASE_URL and migrates a fresh schema.
// These are integration tests against a real Postgres instance, not unit
// tests against a mock — the registries exist precisely to get atomic
// compare-and-swap semantics from the database itself, which a mock cannot
// exercise honestly. Skipped when no database is configured.
func testClient(t *testing.T) *Client {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping storage integration test")
	}
	cfg := &config.Config{
		DatabaseURL:       url,
		DBMaxOpenConns:    5,
		DBMaxIdleConns:    2,
		DBConnMaxLifetime: time.Minute,
	}
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := c.MigrateUp(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestConsumptionRegistryBlocksSecondRecord(t *testing.T) {
	c := testClient(t)
	reg := NewConsumptionRegistry(c)
	ctx := context.Background()

	tokenID := "tok-" + t.Name()
	if err := reg.CheckAndRecord(ctx, tokenID, "hash-a"); err != nil {
		t.Fatalf("first record: %v", err)
	}
	if err := reg.CheckAndRecord(ctx, tokenID, "hash-a"); err == nil {
		t.Fatalf("expected second record of the same token id to fail")
	}

	consumed, err := reg.IsConsumed(ctx, tokenID)
	if err != nil {
		t.Fatalf("is consumed: %v", err)
	}
	if !consumed {
		t.Fatalf("expected token to be recorded as consumed")
	}
}

func TestConsumptionRegistryIndependentTokens(t *testing.T) {
	c := testClient(t)
	reg := NewConsumptionRegistry(c)
	ctx := context.Background()

	for _, id := range []string{"tok-a-" + t.Name(), "tok-b-" + t.Name()} {
		if err := reg.CheckAndRecord(ctx, id, "hash"); err != nil {
			t.Fatalf("record %s: %v", id, err)
		}
	}
}

func TestScopeStoreActivateIsOneTime(t *testing.T) {
	c := testClient(t)
	store := NewScopeStore(c)
	ctx := context.Background()

	sessionID := "session-" + t.Name()
	if err := store.Activate(ctx, sessionID, "hash-1", "example.com,api.example.com"); err != nil {
		t.Fatalf("first activate: %v", err)
	}
	if err := store.Activate(ctx, sessionID, "hash-2", "evil.example.com"); err == nil {
		t.Fatalf("expected second activation for the same session to be rejected")
	}
}
