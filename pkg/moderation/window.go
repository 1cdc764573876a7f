package moderation

import (
	"hash/fnv"
	"sync"
	"time"
)

// entry is one buffered chat message.
type entry struct {
	MessageID string
	Content   string
	At        time.Time
}

// window is the per-(channel, author) sliding buffer. Entries are strictly
// timestamp-ordered; they expire by age or by buffer size, whichever
// triggers first. Never persisted: after a restart moderation starts from
// "no recent history" rather than risking stale false positives.
type window struct {
	entries  []entry
	warnedAt time.Time
}

func (w *window) add(e entry, maxSize int) {
	w.entries = append(w.entries, e)
	if over := len(w.entries) - maxSize; over > 0 {
		w.entries = append(w.entries[:0], w.entries[over:]...)
	}
}

func (w *window) prune(now time.Time, maxAge time.Duration) {
	cutoff := now.Add(-maxAge)
	keep := w.entries[:0]
	for _, e := range w.entries {
		if e.At.After(cutoff) {
			keep = append(keep, e)
		}
	}
	w.entries = keep
}

// warnedInWindow reports whether a warning was already issued within maxAge.
func (w *window) warnedInWindow(now time.Time, maxAge time.Duration) bool {
	return !w.warnedAt.IsZero() && now.Sub(w.warnedAt) <= maxAge
}

const windowShards = 16

type windowKey struct {
	channel string
	author  string
}

// windowMap shards per-key windows across independently locked buckets so
// unrelated channels never contend on one mutex. Access to a given key is
// additionally serialized by the per-channel dispatcher, but the map itself
// must survive concurrent access from different channels.
type windowMap struct {
	shards [windowShards]struct {
		mu sync.Mutex
		m  map[windowKey]*window
	}
}

func newWindowMap() *windowMap {
	wm := &windowMap{}
	for i := range wm.shards {
		wm.shards[i].m = make(map[windowKey]*window)
	}
	return wm
}

func (wm *windowMap) shard(k windowKey) *struct {
	mu sync.Mutex
	m  map[windowKey]*window
} {
	h := fnv.New32a()
	h.Write([]byte(k.channel))
	h.Write([]byte{0})
	h.Write([]byte(k.author))
	return &wm.shards[h.Sum32()%windowShards]
}

// withWindow runs fn with the key's window under its shard lock, creating
// the window lazily on first use.
func (wm *windowMap) withWindow(k windowKey, fn func(w *window)) {
	s := wm.shard(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.m[k]
	if !ok {
		w = &window{}
		s.m[k] = w
	}
	fn(w)
}
