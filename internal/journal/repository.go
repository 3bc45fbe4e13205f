// Package journal persists settled withdrawals as a read model for the
// history API and for offline reconciliation. The ledger remains the source
// of truth; the journal is a queryable copy that must never gate settlement.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MeridianProtocol/server/internal/config"
)

// ErrNotFound is returned when a settlement doesn't exist.
var ErrNotFound = errors.New("journal: settlement not found")

// Settlement is one completed instant withdrawal.
type Settlement struct {
	InboundTxID   string    // user's deposit transaction, the natural key
	OutboundTxID  string    // payout transaction from the liquidity wallet
	AuditTxID     string    // audit topic submission, empty when publication failed
	UserAccountID string
	SourceToken   string
	SourceTiny    int64
	DestToken     string
	GrossTiny     int64
	FeeTiny       int64
	NetTiny       int64
	Rate          string // decimal rate used, for display and reconciliation
	RateSequence  int64
	SettledAt     time.Time
}

// Repository stores and queries settlements.
type Repository interface {
	// Record inserts a settlement. Re-recording the same inbound
	// transaction overwrites the previous row.
	Record(ctx context.Context, s Settlement) error

	// GetByInboundTx looks up a settlement by its inbound transaction ID.
	GetByInboundTx(ctx context.Context, inboundTxID string) (Settlement, error)

	// ListByAccount returns an account's settlements, newest first.
	ListByAccount(ctx context.Context, accountID string, limit int) ([]Settlement, error)

	// Close releases backing resources.
	Close() error
}

// NewRepository builds the configured journal backend.
func NewRepository(cfg config.JournalConfig) (Repository, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryRepository(), nil
	case "postgres":
		return NewPostgresRepository(cfg.PostgresURL)
	case "mongodb":
		return NewMongoDBRepository(cfg.MongoDBURL, cfg.MongoDBDatabase, cfg.MongoDBCollection)
	default:
		return nil, fmt.Errorf("unknown journal backend %q", cfg.Backend)
	}
}
