package journal

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository opens a PostgreSQL-backed journal and ensures the
// settlements table exists.
func NewPostgresRepository(connectionString string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	r := &PostgresRepository{db: db}
	if err := r.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *PostgresRepository) ensureSchema() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS settlements (
			inbound_tx_id   TEXT PRIMARY KEY,
			outbound_tx_id  TEXT NOT NULL,
			audit_tx_id     TEXT NOT NULL DEFAULT '',
			user_account_id TEXT NOT NULL,
			source_token    TEXT NOT NULL,
			source_tiny     BIGINT NOT NULL,
			dest_token      TEXT NOT NULL,
			gross_tiny      BIGINT NOT NULL,
			fee_tiny        BIGINT NOT NULL,
			net_tiny        BIGINT NOT NULL,
			rate            TEXT NOT NULL,
			rate_sequence   BIGINT NOT NULL,
			settled_at      TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS settlements_account_settled_idx
			ON settlements (user_account_id, settled_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("ensure settlements schema: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Record(ctx context.Context, s Settlement) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settlements (
			inbound_tx_id, outbound_tx_id, audit_tx_id, user_account_id,
			source_token, source_tiny, dest_token, gross_tiny, fee_tiny,
			net_tiny, rate, rate_sequence, settled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (inbound_tx_id) DO UPDATE SET
			outbound_tx_id = EXCLUDED.outbound_tx_id,
			audit_tx_id    = EXCLUDED.audit_tx_id,
			settled_at     = EXCLUDED.settled_at
	`,
		s.InboundTxID, s.OutboundTxID, s.AuditTxID, s.UserAccountID,
		s.SourceToken, s.SourceTiny, s.DestToken, s.GrossTiny, s.FeeTiny,
		s.NetTiny, s.Rate, s.RateSequence, s.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("record settlement: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByInboundTx(ctx context.Context, inboundTxID string) (Settlement, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT inbound_tx_id, outbound_tx_id, audit_tx_id, user_account_id,
		       source_token, source_tiny, dest_token, gross_tiny, fee_tiny,
		       net_tiny, rate, rate_sequence, settled_at
		FROM settlements
		WHERE inbound_tx_id = $1
	`, inboundTxID)

	s, err := scanSettlement(row)
	if err == sql.ErrNoRows {
		return Settlement{}, ErrNotFound
	}
	if err != nil {
		return Settlement{}, fmt.Errorf("get settlement: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]Settlement, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT inbound_tx_id, outbound_tx_id, audit_tx_id, user_account_id,
		       source_token, source_tiny, dest_token, gross_tiny, fee_tiny,
		       net_tiny, rate, rate_sequence, settled_at
		FROM settlements
		WHERE user_account_id = $1
		ORDER BY settled_at DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	defer rows.Close()

	var out []Settlement
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan settlement: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSettlement(row rowScanner) (Settlement, error) {
	var s Settlement
	err := row.Scan(
		&s.InboundTxID, &s.OutboundTxID, &s.AuditTxID, &s.UserAccountID,
		&s.SourceToken, &s.SourceTiny, &s.DestToken, &s.GrossTiny, &s.FeeTiny,
		&s.NetTiny, &s.Rate, &s.RateSequence, &s.SettledAt,
	)
	return s, err
}
