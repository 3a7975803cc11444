package usage

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/clestiq/clestiq/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const testKeyID = "f6b9ffd9-0d7a-4a35-a26c-c0e34e53e4ac"

func newTestPostgresStore(t *testing.T) (*PostgresStore, *database.Client) {
	t.Helper()
	ctx := context.Background()

	connStr := os.Getenv("CI_DATABASE_URL")
	if connStr == "" {
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

		connStr, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	client, err := database.NewClient(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close()
	})

	_, err = client.DB().ExecContext(ctx, `
		INSERT INTO applications (id, name)
		VALUES ('7b4ee181-9db6-4a61-8bbd-3f07ae424c53', 'acme-support-bot')
		ON CONFLICT (name) DO NOTHING`)
	require.NoError(t, err)
	_, err = client.DB().ExecContext(ctx, `
		INSERT INTO api_keys (id, key_prefix, key_hash, application_id)
		VALUES ($1, 'sk-l...', 'usage-test-hash', '7b4ee181-9db6-4a61-8bbd-3f07ae424c53')
		ON CONFLICT (key_hash) DO NOTHING`, testKeyID)
	require.NoError(t, err)

	return NewPostgresStore(client.DB()), client
}

func TestPostgresStoreRecordUsage(t *testing.T) {
	store, client := newTestPostgresStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordUsage(ctx, testKeyID, "gemini-3-flash-preview", 100, 40))
	require.NoError(t, store.RecordUsage(ctx, testKeyID, "gemini-3-flash-preview", 50, 10))
	require.NoError(t, store.RecordUsage(ctx, testKeyID, "gemini-3-pro-preview", 7, 3))

	var (
		requestCount int64
		rawUsage     []byte
		lastUsed     *time.Time
	)
	err := client.DB().QueryRowContext(ctx,
		`SELECT request_count, usage_data, last_used_at FROM api_keys WHERE id = $1`,
		testKeyID,
	).Scan(&requestCount, &rawUsage, &lastUsed)
	require.NoError(t, err)

	assert.EqualValues(t, 3, requestCount)
	require.NotNil(t, lastUsed)
	assert.WithinDuration(t, time.Now(), *lastUsed, time.Minute)

	var usageData map[string]map[string]int64
	require.NoError(t, json.Unmarshal(rawUsage, &usageData))
	assert.EqualValues(t, 150, usageData["gemini-3-flash-preview"]["input_tokens"])
	assert.EqualValues(t, 50, usageData["gemini-3-flash-preview"]["output_tokens"])
	assert.EqualValues(t, 7, usageData["gemini-3-pro-preview"]["input_tokens"])
	assert.EqualValues(t, 3, usageData["gemini-3-pro-preview"]["output_tokens"])
}

func TestPostgresStoreRecordUsageUnknownKey(t *testing.T) {
	store, _ := newTestPostgresStore(t)

	err := store.RecordUsage(context.Background(), "11111111-2222-3333-4444-555555555555", "m", 1, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no api key row")
}
