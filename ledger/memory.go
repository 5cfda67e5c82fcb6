package ledger

import (
	"context"
	"sort"
	"sync"

	"racehouse/errs"
)

// MemoryStore keeps entries in process. Used by tests and when no database
// is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]Entry)}
}

func (m *MemoryStore) LastEntry(_ context.Context, wallet string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.entries[wallet]
	if len(list) == 0 {
		return nil, nil
	}
	e := list[len(list)-1]
	return &e, nil
}

func (m *MemoryStore) AppendEntry(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.entries[e.Wallet]
	if e.Sequence != int64(len(list)+1) {
		return errs.Wrapf(errs.ErrConcurrentModification, "wallet %s: sequence %d already taken", e.Wallet, e.Sequence)
	}
	m.entries[e.Wallet] = append(list, e)
	return nil
}

func (m *MemoryStore) Entries(_ context.Context, wallet string, limit int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.entries[wallet]
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	out := make([]Entry, len(list))
	copy(out, list)
	return out, nil
}

func (m *MemoryStore) Standings(_ context.Context, limit int) ([]Standing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Standing, 0, len(m.entries))
	for wallet, list := range m.entries {
		if len(list) == 0 {
			continue
		}
		out = append(out, Standing{Wallet: wallet, Balance: list[len(list)-1].BalanceAfter})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Balance.Cmp(out[j].Balance); c != 0 {
			return c > 0
		}
		return out[i].Wallet < out[j].Wallet
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
