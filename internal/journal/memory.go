package journal

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository keeps settlements in process memory. The default for
// development and tests; history disappears on restart, the ledger does not.
type MemoryRepository struct {
	mu          sync.RWMutex
	byInboundTx map[string]Settlement
}

// NewMemoryRepository creates an empty in-memory journal.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byInboundTx: make(map[string]Settlement)}
}

func (r *MemoryRepository) Record(ctx context.Context, s Settlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byInboundTx[s.InboundTxID] = s
	return nil
}

func (r *MemoryRepository) GetByInboundTx(ctx context.Context, inboundTxID string) (Settlement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byInboundTx[inboundTxID]
	if !ok {
		return Settlement{}, ErrNotFound
	}
	return s, nil
}

func (r *MemoryRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]Settlement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Settlement
	for _, s := range r.byInboundTx {
		if s.UserAccountID == accountID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SettledAt.After(out[j].SettledAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) Close() error {
	return nil
}
