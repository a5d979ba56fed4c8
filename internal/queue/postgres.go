package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is a Transport backed by a jobs table. Receivers claim pending
// rows with FOR UPDATE SKIP LOCKED so multiple workers can poll the same
// table without double-delivery.
type Postgres struct {
	pool     *pgxpool.Pool
	interval time.Duration
}

// NewPostgres creates a PostgreSQL-backed transport polling at the given
// interval.
func NewPostgres(pool *pgxpool.Pool, interval time.Duration) *Postgres {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Postgres{pool: pool, interval: interval}
}

// Receive polls for a pending run request, blocking until one is claimed or
// ctx is done. Claimed rows are marked in_progress inside the claiming
// transaction.
func (q *Postgres) Receive(ctx context.Context) (*RunRequest, error) {
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	for {
		req, err := q.claim(ctx)
		if err != nil {
			return nil, err
		}
		if req != nil {
			return req, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *Postgres) claim(ctx context.Context) (*RunRequest, error) {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	var payload []byte
	err = tx.QueryRow(ctx,
		`SELECT id, payload FROM run_requests
		 WHERE status = 'pending'
		 ORDER BY created_at
		 FOR UPDATE SKIP LOCKED
		 LIMIT 1`,
	).Scan(&id, &payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim run request: %w", err)
	}

	req, err := DecodeRunRequest(payload)
	if err != nil {
		// Poison message. Mark it failed so it does not block the queue.
		if _, uerr := tx.Exec(ctx,
			`UPDATE run_requests SET status = 'invalid', claimed_at = NOW() WHERE id = $1`, id); uerr != nil {
			return nil, fmt.Errorf("failed to mark invalid request: %w", uerr)
		}
		if cerr := tx.Commit(ctx); cerr != nil {
			return nil, fmt.Errorf("failed to commit invalid request: %w", cerr)
		}
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE run_requests SET status = 'in_progress', claimed_at = NOW() WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("failed to mark claimed request: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}
	return req, nil
}

// Publish records a run completion.
func (q *Postgres) Publish(ctx context.Context, completed *RunCompleted) error {
	payload, err := json.Marshal(completed)
	if err != nil {
		return fmt.Errorf("failed to marshal completion: %w", err)
	}
	_, err = q.pool.Exec(ctx,
		`INSERT INTO run_completions (run_id, payload) VALUES ($1, $2)`,
		completed.RunID, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to publish completion: %w", err)
	}
	return nil
}

// Close releases nothing; the pool is owned by the caller.
func (q *Postgres) Close() error {
	return nil
}
