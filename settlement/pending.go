package settlement

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vitwit/tokensale/types"
)

// PendingTable holds purchase contexts awaiting a quote. Entries are kept in
// their encoded form, so what survives the suspension is exactly what a
// durable queue would carry.
type PendingTable struct {
	mu      sync.Mutex
	entries map[types.RequestID][]byte
}

func NewPendingTable() *PendingTable {
	return &PendingTable{entries: make(map[types.RequestID][]byte)}
}

// Put registers p. A request id can only be registered once.
func (t *PendingTable) Put(p types.PendingPurchase) error {
	raw, err := p.Encode()
	if err != nil {
		return types.NewError(types.ErrInvalidPayload, "encode pending purchase: %v", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, dup := t.entries[p.RequestID]; dup {
		return types.NewError(types.ErrInvalidPayload, "request %s is already pending", p.RequestID)
	}
	t.entries[p.RequestID] = raw
	return nil
}

// Take removes and returns the entry for id. Concurrent callers for the same
// id see it at most once. An entry that cannot be decoded stays in the table
// and is reported as an error.
func (t *PendingTable) Take(id types.RequestID) (types.PendingPurchase, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	raw, ok := t.entries[id]
	if !ok {
		return types.PendingPurchase{}, false, nil
	}
	p, err := types.DecodePendingPurchase(raw)
	if err != nil {
		return types.PendingPurchase{}, false, fmt.Errorf("pending request %s: %w", id, err)
	}
	delete(t.entries, id)
	return p, true, nil
}

func (t *PendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// List returns every pending purchase, oldest first
func (t *PendingTable) List() []types.PendingPurchase {
	t.mu.Lock()
	raws := make([][]byte, 0, len(t.entries))
	for _, raw := range t.entries {
		raws = append(raws, raw)
	}
	t.mu.Unlock()

	out := make([]types.PendingPurchase, 0, len(raws))
	for _, raw := range raws {
		if p, err := types.DecodePendingPurchase(raw); err == nil {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].RequestID < out[j].RequestID
		}
		return out[i].IssuedAt.Before(out[j].IssuedAt)
	})
	return out
}
