package signature

import "sync"

// RecentNames is a bounded FIFO of recently allocated LLM bot names/labels,
// used to reject duplicate allocations so the same cluster of traffic does
// not accumulate ten different invented bot names across requests. Oldest
// entries drop first once the queue reaches its capacity.
type RecentNames struct {
	mu       sync.Mutex
	order    []string
	seen     map[string]struct{}
	capacity int
}

// NewRecentNames builds a queue bounded at capacity entries (spec default:
// 200).
func NewRecentNames(capacity int) *RecentNames {
	if capacity <= 0 {
		capacity = 200
	}
	return &RecentNames{
		order:    make([]string, 0, capacity),
		seen:     make(map[string]struct{}, capacity),
		capacity: capacity,
	}
}

// TryUse reports whether name is novel. If so, it is enqueued and true is
// returned; if name was already enqueued, false is returned and the queue is
// left unchanged — the caller should fall back to a generic label rather
// than mint a second bot sharing an existing name.
func (q *RecentNames) TryUse(name string) bool {
	if name == "" {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, dup := q.seen[name]; dup {
		return false
	}

	q.order = append(q.order, name)
	q.seen[name] = struct{}{}

	if len(q.order) > q.capacity {
		oldest := q.order[0]
		q.order = q.order[1:]
		delete(q.seen, oldest)
	}

	return true
}

// Len returns the number of names currently held, for diagnostics and tests.
func (q *RecentNames) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}
