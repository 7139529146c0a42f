package samples

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the samples table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS quote_samples (
    id               UUID         PRIMARY KEY,
    kind             TEXT         NOT NULL,
    recorded_at      TIMESTAMPTZ  NOT NULL DEFAULT now(),
    transcription    TEXT         NOT NULL,
    corrected        TEXT         NOT NULL DEFAULT '',
    quote            TEXT         NOT NULL DEFAULT '',
    pattern          TEXT         NOT NULL DEFAULT '',
    corrected_quote  TEXT         NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_quote_samples_recorded_at ON quote_samples (recorded_at DESC);
CREATE INDEX IF NOT EXISTS idx_quote_samples_kind ON quote_samples (kind);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// PostgresStore is a [Store] backed by a PostgreSQL database.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a new [PostgresStore] that uses the given database
// connection or pool. The caller is responsible for calling
// [PostgresStore.Migrate] before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL. It is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("samples: migrate: %w", err)
	}
	return nil
}

// Save inserts smp. Saving the same ID twice is an error.
func (s *PostgresStore) Save(ctx context.Context, smp Sample) error {
	if err := smp.Validate(); err != nil {
		return err
	}

	const query = `
		INSERT INTO quote_samples (
			id, kind, recorded_at, transcription, corrected,
			quote, pattern, corrected_quote
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err := s.db.Exec(ctx, query,
		smp.ID, string(smp.Kind), smp.Timestamp, smp.Transcription, smp.Corrected,
		smp.Quote, smp.Pattern, smp.CorrectedQuote,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("samples: sample %q already exists", smp.ID)
		}
		return fmt.Errorf("samples: save: %w", err)
	}
	return nil
}

// Recent returns up to limit samples ordered by recording time, newest first.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Sample, error) {
	if limit <= 0 {
		return nil, nil
	}

	const query = `
		SELECT id::text, kind, recorded_at, transcription, corrected,
		       quote, pattern, corrected_quote
		FROM quote_samples
		ORDER BY recorded_at DESC
		LIMIT $1`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("samples: recent: %w", err)
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var (
			smp  Sample
			kind string
		)
		if err := rows.Scan(
			&smp.ID, &kind, &smp.Timestamp, &smp.Transcription, &smp.Corrected,
			&smp.Quote, &smp.Pattern, &smp.CorrectedQuote,
		); err != nil {
			return nil, fmt.Errorf("samples: scan: %w", err)
		}
		smp.Kind = Kind(kind)
		out = append(out, smp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("samples: recent rows: %w", err)
	}
	return out, nil
}

// Ping runs a trivial query.
func (s *PostgresStore) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("samples: ping: %w", err)
	}
	return nil
}

// isDuplicateKeyError checks whether a PostgreSQL error is a unique-violation
// (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
