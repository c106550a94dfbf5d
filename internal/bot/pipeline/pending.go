package pipeline

import "sync"

// PendingImage tracks which users the bot is awaiting an image prompt from.
// The table lives in process memory only; a restart drops outstanding
// expectations and the user simply re-issues the image command.
type PendingImage struct {
	mu  sync.Mutex
	set map[int64]struct{}
}

// NewPendingImage returns an empty pending-prompt table.
func NewPendingImage() *PendingImage {
	return &PendingImage{set: make(map[int64]struct{})}
}

// Arm marks the user as owing an image prompt.
func (p *PendingImage) Arm(userID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.set[userID] = struct{}{}
}

// TakeAndClear reports whether the user owed an image prompt and clears the
// flag in the same step, so concurrent messages from one user cannot both
// observe it.
func (p *PendingImage) TakeAndClear(userID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.set[userID]
	if ok {
		delete(p.set, userID)
	}
	return ok
}
