// Table wraps hashicorp/golang-lru's NewWithEvict so an evicted flow's
// in-progress PE buffer gets the same "dump if needed" treatment as a
// flow explicitly closed by FIN/RST, matching tflow_destroy in
// original_source/pe_dump/pe_dump.c. Grounded structurally on the
// mutex+map atomicConnMap wrapper in
// DynamEq6388-netcap/decoder/packet/connection.go, adapted to use a real
// bounded LRU instead of an unbounded map.
package flow

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// EvictHook is called synchronously, under the table's lock, whenever a
// flow leaves the table: a capacity eviction, an explicit Remove, or a
// Purge. It mirrors tflow_destroy's "dump if the flow currently holds a
// recognized PE buffer" behavior.
type EvictHook func(f *Flow)

// Table is the LRU-bounded set of currently tracked flows, keyed by a
// flow's forward (client-to-server) key.
type Table struct {
	mu   sync.Mutex
	lru  *lru.Cache[string, *Flow]
	log  *zap.Logger
	hook EvictHook
}

// NewTable builds a Table with the given capacity. onEvict is invoked for
// every eviction, including ones triggered by explicit Remove — callers
// that don't want a double dump on an intentional close should nil out
// the flow's buffer before calling Remove (see dispatch.go).
func NewTable(capacity int, log *zap.Logger, onEvict EvictHook) (*Table, error) {
	t := &Table{log: log, hook: onEvict}

	c, err := lru.NewWithEvict[string, *Flow](capacity, func(key string, f *Flow) {
		t.onEvict(key, f)
	})
	if err != nil {
		return nil, err
	}

	t.lru = c

	return t, nil
}

func (t *Table) onEvict(_ string, f *Flow) {
	if t.log != nil {
		t.log.Debug("evicting flow", f.LogFields()...)
	}

	if t.hook != nil {
		t.hook(f)
	}
}

// Lookup returns the flow stored under key, if any.
func (t *Table) Lookup(key string) (*Flow, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.lru.Get(key)
}

// Store inserts f under its forward key. If that key already holds a
// flow (a 4-tuple collision, e.g. a SYN racing a still-open prior
// connection on the same ports), the caller is expected to have already
// handled tearing down the old one — Store simply overwrites.
func (t *Table) Store(f *Flow) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lru.Add(f.CSKey, f)
}

// Remove deletes a flow by its forward key, matching remove_flow. This
// also runs the eviction hook (via the underlying LRU's own accounting),
// so callers that already dumped the flow intentionally should clear its
// buffer first via TakeBuffer so the hook sees nothing to do.
func (t *Table) Remove(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lru.Remove(key)
}

// Len reports how many flows are currently tracked.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.lru.Len()
}

// Purge removes every tracked flow, running the eviction hook for each —
// used at shutdown so any in-flight PE buffers still get dumped.
func (t *Table) Purge() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lru.Purge()
}
