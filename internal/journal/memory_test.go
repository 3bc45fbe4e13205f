package journal

import (
	"context"
	"errors"
	"testing"
	"time"
)

func settlementAt(inboundTx, account string, settledAt time.Time) Settlement {
	return Settlement{
		InboundTxID:   inboundTx,
		OutboundTxID:  "0.0.400-1756700020-000000002",
		UserAccountID: account,
		SourceToken:   "MUSD",
		SourceTiny:    100500000,
		DestToken:     "USDC",
		GrossTiny:     101505000,
		FeeTiny:       1015050,
		NetTiny:       100489950,
		Rate:          "1.01000000",
		RateSequence:  17,
		SettledAt:     settledAt,
	}
}

func TestMemoryRepositoryRecordAndGet(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	want := settlementAt("tx-1", "0.0.1001", time.Now())
	if err := repo.Record(ctx, want); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	got, err := repo.GetByInboundTx(ctx, "tx-1")
	if err != nil {
		t.Fatalf("GetByInboundTx() error = %v", err)
	}
	if got != want {
		t.Errorf("GetByInboundTx() = %+v, want %+v", got, want)
	}

	if _, err := repo.GetByInboundTx(ctx, "tx-missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing settlement error = %v, want ErrNotFound", err)
	}
}

func TestMemoryRepositoryRecordOverwrites(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	first := settlementAt("tx-1", "0.0.1001", time.Now())
	if err := repo.Record(ctx, first); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	updated := first
	updated.AuditTxID = "0.0.400-1756700300-000000007"
	if err := repo.Record(ctx, updated); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	got, err := repo.GetByInboundTx(ctx, "tx-1")
	if err != nil {
		t.Fatalf("GetByInboundTx() error = %v", err)
	}
	if got.AuditTxID != updated.AuditTxID {
		t.Errorf("AuditTxID = %q, want %q", got.AuditTxID, updated.AuditTxID)
	}
}

func TestMemoryRepositoryListByAccount(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	for i, tc := range []struct {
		tx      string
		account string
		offset  time.Duration
	}{
		{"tx-1", "0.0.1001", 0},
		{"tx-2", "0.0.1001", time.Minute},
		{"tx-3", "0.0.2002", 2 * time.Minute},
		{"tx-4", "0.0.1001", 3 * time.Minute},
	} {
		if err := repo.Record(ctx, settlementAt(tc.tx, tc.account, base.Add(tc.offset))); err != nil {
			t.Fatalf("Record(%d) error = %v", i, err)
		}
	}

	got, err := repo.ListByAccount(ctx, "0.0.1001", 0)
	if err != nil {
		t.Fatalf("ListByAccount() error = %v", err)
	}
	wantOrder := []string{"tx-4", "tx-2", "tx-1"}
	if len(got) != len(wantOrder) {
		t.Fatalf("got %d settlements, want %d", len(got), len(wantOrder))
	}
	for i, want := range wantOrder {
		if got[i].InboundTxID != want {
			t.Errorf("settlement[%d] = %s, want %s", i, got[i].InboundTxID, want)
		}
	}

	limited, err := repo.ListByAccount(ctx, "0.0.1001", 2)
	if err != nil {
		t.Fatalf("ListByAccount() error = %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limited list length = %d, want 2", len(limited))
	}

	empty, err := repo.ListByAccount(ctx, "0.0.9999", 0)
	if err != nil {
		t.Fatalf("ListByAccount() error = %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("unknown account list length = %d, want 0", len(empty))
	}
}
