package store

import "sync"

// Watch is a live listener handle for one remote path. Every mutation of the
// watched path delivers a tick on C; ticks are coalesced (a pending tick
// absorbs later ones), so consumers re-read the full snapshot per tick.
// Close releases the listener registration and is safe to call more than once.
type Watch struct {
	C <-chan struct{}

	ch      chan struct{}
	once    sync.Once
	release func()
}

// NewWatch builds a watch handle around a release callback. Adapters call
// Notify on mutation and pass the deregistration logic as release.
func NewWatch(release func()) *Watch {
	ch := make(chan struct{}, 1)
	return &Watch{C: ch, ch: ch, release: release}
}

// Notify delivers a coalesced change tick. Never blocks.
func (w *Watch) Notify() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// Close releases the underlying listener registration.
func (w *Watch) Close() {
	w.once.Do(func() {
		if w.release != nil {
			w.release()
		}
	})
}

// Notifier is a registry of watches per path key, shared by adapters whose
// change signals are generated in-process (memory, pebble). The postgres
// adapter drives the same Watch type from LISTEN/NOTIFY instead.
type Notifier struct {
	mu      sync.Mutex
	watches map[string]map[*Watch]struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{watches: make(map[string]map[*Watch]struct{})}
}

// Watch registers a new listener for key.
func (n *Notifier) Watch(key string) *Watch {
	n.mu.Lock()
	defer n.mu.Unlock()
	set, ok := n.watches[key]
	if !ok {
		set = make(map[*Watch]struct{})
		n.watches[key] = set
	}
	var w *Watch
	w = NewWatch(func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if s, ok := n.watches[key]; ok {
			delete(s, w)
			if len(s) == 0 {
				delete(n.watches, key)
			}
		}
	})
	set[w] = struct{}{}
	return w
}

// Notify ticks every watch registered for key.
func (n *Notifier) Notify(key string) {
	n.mu.Lock()
	targets := make([]*Watch, 0, 4)
	for w := range n.watches[key] {
		targets = append(targets, w)
	}
	n.mu.Unlock()
	for _, w := range targets {
		w.Notify()
	}
}

// WatchCount reports the number of live watches for key (used in tests to
// verify the acquire/release contract).
func (n *Notifier) WatchCount(key string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.watches[key])
}
