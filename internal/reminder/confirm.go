package reminder

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultConfirmTTL bounds how long a cancel-all prompt stays answerable.
const DefaultConfirmTTL = 2 * time.Minute

// Confirmation is a pending cancel-all prompt. Token travels in the
// prompt's buttons; it is single-use and bound to the requesting user.
type Confirmation struct {
	Token     string
	GuildID   string
	Requester string
	ExpiresAt time.Time
}

type confirmations struct {
	mu      sync.Mutex
	ttl     time.Duration
	pending map[string]Confirmation
}

func newConfirmations(ttl time.Duration) *confirmations {
	if ttl <= 0 {
		ttl = DefaultConfirmTTL
	}
	return &confirmations{ttl: ttl, pending: map[string]Confirmation{}}
}

func (c *confirmations) issue(guildID, requester string, now time.Time) Confirmation {
	cf := Confirmation{
		Token:     uuid.NewString(),
		GuildID:   guildID,
		Requester: requester,
		ExpiresAt: now.Add(c.ttl),
	}
	c.mu.Lock()
	c.sweepLocked(now)
	c.pending[cf.Token] = cf
	c.mu.Unlock()
	return cf
}

// take consumes token. A requester mismatch leaves the token in place so
// the rightful user can still answer.
func (c *confirmations) take(token, requester string, now time.Time) (Confirmation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked(now)
	cf, ok := c.pending[token]
	if !ok || cf.Requester != requester {
		return Confirmation{}, false
	}
	delete(c.pending, token)
	return cf, true
}

func (c *confirmations) sweepLocked(now time.Time) {
	for k, cf := range c.pending {
		if !now.Before(cf.ExpiresAt) {
			delete(c.pending, k)
		}
	}
}

func (c *confirmations) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
