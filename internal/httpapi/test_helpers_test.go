package httpapi

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaysync/relaysync-api/internal/config"
	"github.com/relaysync/relaysync-api/internal/credential"
	"github.com/relaysync/relaysync-api/internal/db"
	"github.com/relaysync/relaysync-api/internal/objectclass"
	"github.com/relaysync/relaysync-api/internal/storage"
	"github.com/relaysync/relaysync-api/internal/synccount"
)

// getTestServer builds a fully wired Server against TEST_DATABASE_URL,
// skipping the test if that env var is unset: open, ensure schema, clean
// tables, build dependencies.
func getTestServer(t *testing.T) *Server {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	pool, err := db.Open(ctx, url, db.DefaultPoolConfig())
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	if err := db.EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	t.Cleanup(pool.Close)
	cleanAllTables(t, pool)

	gw := storage.New(pool)
	engine, err := synccount.NewEngine(gw, 80*time.Minute)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	return &Server{
		Config: &config.Config{
			ApplicationKeys:   []string{"private", "internal"},
			MinPasswordLength: 14,
		},
		Gateway:    gw,
		Credential: credential.NewStore(gw),
		SyncEngine: engine,
		Registry:   objectclass.Default(),
	}
}

func cleanAllTables(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	for _, table := range []string{"sync_count", "product", "setting", "client", "app_user"} {
		if _, err := pool.Exec(context.Background(), "DELETE FROM "+table); err != nil {
			t.Fatalf("cleaning %s: %v", table, err)
		}
	}
}
