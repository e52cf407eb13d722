// Package presence tracks which conversation screen each user currently has
// open. The state is process-lifetime only: after a restart everyone is
// implicitly "not viewing".
package presence

import "sync"

type Tracker struct {
	mu      sync.RWMutex
	viewing map[string]string // viewer -> peer whose conversation is open
}

func NewTracker() *Tracker {
	return &Tracker{viewing: make(map[string]string)}
}

// SetViewing records that viewer has peer's conversation open.
func (t *Tracker) SetViewing(viewer, peer string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.viewing[viewer] = peer
}

// ClearViewing records that viewer left whatever conversation was open.
func (t *Tracker) ClearViewing(viewer string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.viewing, viewer)
}

// IsViewing reports whether viewer currently has peer's conversation open.
// Seen-receipts are gated on this so a stray socket event can't mark
// messages seen on a screen nobody is looking at.
func (t *Tracker) IsViewing(viewer, peer string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.viewing[viewer] == peer
}
