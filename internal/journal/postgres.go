package journal

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS interactions (
	id              UUID PRIMARY KEY,
	session_id      TEXT NOT NULL,
	raw_text        TEXT NOT NULL,
	normalized_text TEXT NOT NULL,
	intent_kind     TEXT NOT NULL,
	target_intent   TEXT NOT NULL DEFAULT '',
	confidence      DOUBLE PRECISION NOT NULL DEFAULT 0,
	result_kind     TEXT NOT NULL,
	response_text   TEXT NOT NULL DEFAULT '',
	at              TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS interactions_at_idx ON interactions (at DESC);
`

// Postgres is the pgx-backed Store.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// NewPostgres connects to dsn, ensures the interactions table exists, and
// returns the store.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal: ensure schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Record implements Store.
func (p *Postgres) Record(ctx context.Context, e Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO interactions
			(id, session_id, raw_text, normalized_text, intent_kind,
			 target_intent, confidence, result_kind, response_text, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.SessionID, e.RawText, e.NormalizedText, e.IntentKind,
		e.TargetIntent, e.Confidence, e.ResultKind, e.ResponseText, e.At)
	if err != nil {
		return fmt.Errorf("journal: insert: %w", err)
	}
	return nil
}

// Recent implements Store.
func (p *Postgres) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, session_id, raw_text, normalized_text, intent_kind,
		       target_intent, confidence, result_kind, response_text, at
		FROM interactions
		ORDER BY at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.RawText, &e.NormalizedText,
			&e.IntentKind, &e.TargetIntent, &e.Confidence, &e.ResultKind,
			&e.ResponseText, &e.At); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: rows: %w", err)
	}
	return entries, nil
}

// Close implements Store.
func (p *Postgres) Close() {
	p.pool.Close()
}
