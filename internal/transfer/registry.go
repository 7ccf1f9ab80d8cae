package transfer

import (
	"sync"
	"time"
)

// Registry indexes live transfer handles by attempt id and transaction id.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]*Transfer
	byTxn map[string]*Transfer
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Transfer), byTxn: make(map[string]*Transfer)}
}

func (r *Registry) add(t *Transfer) {
	r.mu.Lock()
	r.byID[t.id] = t
	r.mu.Unlock()
}

func (r *Registry) indexTransaction(t *Transfer, transactionID string) {
	r.mu.Lock()
	r.byTxn[transactionID] = t
	r.mu.Unlock()
}

// Get returns the handle for an attempt id.
func (r *Registry) Get(id string) (*Transfer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[id]
	return t, ok
}

// ByTransaction returns the handle that submitted transactionID.
func (r *Registry) ByTransaction(transactionID string) (*Transfer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byTxn[transactionID]
	return t, ok
}

// Len reports the number of live handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Sweep drops handles whose terminal outcome was consumed, and settled
// handles untouched since cutoff. Journaled attempts stay reconcilable.
func (r *Registry) Sweep(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, t := range r.byID {
		if !t.evictable(cutoff) {
			continue
		}
		delete(r.byID, id)
		if txID := t.TransactionID(); txID != "" {
			delete(r.byTxn, txID)
		}
		removed++
	}
	return removed
}
