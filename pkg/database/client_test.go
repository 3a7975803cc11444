package database

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// testDatabaseURL returns a connection string for integration tests.
// In CI (when CI_DATABASE_URL is set): connects to the external PostgreSQL
// service container. In local dev: spins up a testcontainer.
func testDatabaseURL(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	if ciDatabaseURL := os.Getenv("CI_DATABASE_URL"); ciDatabaseURL != "" {
		t.Log("Using external PostgreSQL from CI_DATABASE_URL")
		return ciDatabaseURL
	}

	t.Log("Using testcontainers for PostgreSQL")
	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("clestiq_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return connStr
}

func newTestClient(t *testing.T) *Client {
	t.Helper()

	client, err := NewClient(context.Background(), testDatabaseURL(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func TestNewClientAppliesMigrations(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	// Both credential tables must exist after startup.
	for _, table := range []string{"applications", "api_keys"} {
		var exists bool
		err := client.DB().QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`,
			table,
		).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "table %s should exist", table)
	}

	// Running migrations again must be a no-op, not an error.
	require.NoError(t, runMigrations(client.DB()))
}

func TestClientHealth(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	health, err := client.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.GreaterOrEqual(t, health.ResponseTime, int64(0))
	assert.Less(t, health.ResponseTime, int64(1000), "local ping should be fast")

	// The JSON form reports milliseconds, not nanoseconds.
	raw, err := json.Marshal(health)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	responseTime, ok := fields["response_time_ms"].(float64)
	require.True(t, ok, "response_time_ms should be a number")
	assert.Less(t, responseTime, float64(1000000))
}

func TestKeyHashUniqueness(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_, err := client.DB().ExecContext(ctx,
		`INSERT INTO applications (id, name) VALUES ('7b4ee181-9db6-4a61-8bbd-3f07ae424c53', 'acme-support-bot')`)
	require.NoError(t, err)

	insertKey := `INSERT INTO api_keys (id, key_prefix, key_hash, application_id)
		VALUES ($1, 'sk-a', 'deadbeef', '7b4ee181-9db6-4a61-8bbd-3f07ae424c53')`

	_, err = client.DB().ExecContext(ctx, insertKey, "f6b9ffd9-0d7a-4a35-a26c-c0e34e53e4ac")
	require.NoError(t, err)

	_, err = client.DB().ExecContext(ctx, insertKey, "b73edbc4-5a7b-42d4-b8d4-8c3f93a80652")
	assert.Error(t, err, "duplicate key_hash must be rejected")
}
