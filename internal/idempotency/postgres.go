package idempotency

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresStore is the default durable implementation. The claim is one
// INSERT .. ON CONFLICT DO NOTHING: the row either belongs to this caller
// or already exists, with no window between check and set.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) BeginOrGet(ctx context.Context, key string) (Outcome, error) {
	const claim = `
		INSERT INTO tenant.idempotency_keys (key, state)
		VALUES ($1, 'in_progress')
		ON CONFLICT (key) DO NOTHING;
	`
	res, err := s.db.ExecContext(ctx, claim, key)
	if err != nil {
		return Outcome{}, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return Outcome{}, err
	}
	if rows == 1 {
		return Outcome{State: StateNew}, nil
	}

	const read = `
		SELECT state, result, cause
		FROM tenant.idempotency_keys
		WHERE key = $1;
	`
	var (
		state  string
		result []byte
		cause  sql.NullString
	)
	err = s.db.QueryRowContext(ctx, read, key).Scan(&state, &result, &cause)
	if errors.Is(err, sql.ErrNoRows) {
		// The competing entry was released (retryable failure) between our
		// insert and read; treat it as claimable again on the next call.
		return Outcome{State: StateInProgress}, nil
	}
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{State: State(state), Result: result, Cause: cause.String}, nil
}

func (s *PostgresStore) Complete(ctx context.Context, key string, result []byte) error {
	const query = `
		UPDATE tenant.idempotency_keys
		SET state = 'done', result = $2, cause = NULL, updated_at = now()
		WHERE key = $1;
	`
	_, err := s.db.ExecContext(ctx, query, key, result)
	return err
}

func (s *PostgresStore) Fail(ctx context.Context, key string, cause error, policy FailPolicy) error {
	if policy == Retryable {
		const release = `DELETE FROM tenant.idempotency_keys WHERE key = $1 AND state = 'in_progress';`
		_, err := s.db.ExecContext(ctx, release, key)
		return err
	}

	const memoize = `
		UPDATE tenant.idempotency_keys
		SET state = 'failed', cause = $2, updated_at = now()
		WHERE key = $1;
	`
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := s.db.ExecContext(ctx, memoize, key, msg)
	return err
}
