package broadcast

import (
	"sync"

	"github.com/quillsync/quill/pkg/revlog"
)

// Memory is an in-process PubSub, the right choice for a single-process
// deployment or for tests. Fan-out is best-effort: a slow subscriber
// drops messages rather than blocking the publisher.
type Memory struct {
	mu   sync.Mutex
	subs map[string]map[chan revlog.Revision]struct{}
}

// NewMemory returns an empty in-process PubSub.
func NewMemory() *Memory {
	return &Memory{subs: make(map[string]map[chan revlog.Revision]struct{})}
}

// Publish implements Publisher.
func (m *Memory) Publish(docID string, rev revlog.Revision) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for ch := range m.subs[docID] {
		select {
		case ch <- rev:
		default:
		}
	}
}

// Subscribe implements Subscriber.
func (m *Memory) Subscribe(docID string) (<-chan revlog.Revision, func()) {
	ch := make(chan revlog.Revision, 16)

	m.mu.Lock()
	if m.subs[docID] == nil {
		m.subs[docID] = make(map[chan revlog.Revision]struct{})
	}
	m.subs[docID][ch] = struct{}{}
	m.mu.Unlock()

	unsubscribe := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if set, ok := m.subs[docID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(m.subs, docID)
			}
		}
		close(ch)
	}

	return ch, unsubscribe
}
