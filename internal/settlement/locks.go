package settlement

import (
	"sync"
	"time"
)

// walletLocks serializes payouts per liquidity wallet. The balance check and
// the outbound transfer must happen under the same lock, or two settlements
// could both pass the check against a balance only one of them can drain.
type walletLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newWalletLocks() *walletLocks {
	return &walletLocks{locks: make(map[string]*sync.Mutex)}
}

// forWallet returns the mutex for a wallet, creating it on first use. The
// wallet set is small and fixed by configuration, so entries are never
// evicted.
func (w *walletLocks) forWallet(account string) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()
	lock, ok := w.locks[account]
	if !ok {
		lock = &sync.Mutex{}
		w.locks[account] = lock
	}
	return lock
}

// mirrorLagWindow is how long a confirmed payout is assumed to be missing
// from mirror node balance reads.
const mirrorLagWindow = 30 * time.Second

// recentDebits tracks payouts the mirror node may not reflect yet, so a
// balance read immediately after a payout does not double-count the funds.
type recentDebits struct {
	mu       sync.Mutex
	byWallet map[string][]debit
}

type debit struct {
	amount int64
	at     time.Time
}

func newRecentDebits() *recentDebits {
	return &recentDebits{byWallet: make(map[string][]debit)}
}

func (r *recentDebits) add(wallet string, amount int64, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byWallet[wallet] = append(r.byWallet[wallet], debit{amount: amount, at: at})
}

// outstanding sums debits still inside the lag window and prunes the rest.
func (r *recentDebits) outstanding(wallet string, now time.Time) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var kept []debit
	var sum int64
	for _, d := range r.byWallet[wallet] {
		if now.Sub(d.at) < mirrorLagWindow {
			kept = append(kept, d)
			sum += d.amount
		}
	}
	if len(kept) == 0 {
		delete(r.byWallet, wallet)
	} else {
		r.byWallet[wallet] = kept
	}
	return sum
}
