package usage

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore maintains the durable usage record on the api_keys row:
// request_count, last_used_at, and the per-model usage_data JSON of shape
// {"<model>": {"input_tokens": N, "output_tokens": N}}.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps a shared connection pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// RecordUsage applies one request's accounting in a single UPDATE so
// concurrent gateways never lose increments.
func (s *PostgresStore) RecordUsage(ctx context.Context, keyID, model string, inputTokens, outputTokens int) error {
	const query = `
		UPDATE api_keys
		SET request_count = request_count + 1,
		    last_used_at = now(),
		    usage_data = jsonb_set(
		        usage_data,
		        ARRAY[$2::text],
		        jsonb_build_object(
		            'input_tokens',
		            COALESCE((usage_data #>> ARRAY[$2::text, 'input_tokens'])::bigint, 0) + $3::bigint,
		            'output_tokens',
		            COALESCE((usage_data #>> ARRAY[$2::text, 'output_tokens'])::bigint, 0) + $4::bigint
		        )
		    )
		WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, keyID, model, inputTokens, outputTokens)
	if err != nil {
		return fmt.Errorf("failed to update usage row: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return fmt.Errorf("no api key row for %s", keyID)
	}
	return nil
}
