package gateway

// dedupeRing remembers the last capacity frame ids so that frames replayed
// by the platform across a reconnect are delivered at most once. Not safe
// for concurrent use; only the read loop touches it.
type dedupeRing struct {
	seen  map[string]struct{}
	order []string
	next  int
}

func newDedupeRing(capacity int) *dedupeRing {
	if capacity <= 0 {
		capacity = 512
	}
	return &dedupeRing{
		seen:  make(map[string]struct{}, capacity),
		order: make([]string, capacity),
	}
}

// remember records id and reports whether it was new. Returns false for a
// duplicate; the oldest entry is evicted once the ring is full.
func (r *dedupeRing) remember(id string) bool {
	if _, ok := r.seen[id]; ok {
		return false
	}
	if old := r.order[r.next]; old != "" {
		delete(r.seen, old)
	}
	r.order[r.next] = id
	r.next = (r.next + 1) % len(r.order)
	r.seen[id] = struct{}{}
	return true
}
