package realtime

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Channel is one live connection belonging to a user (a tab, a device).
type Channel interface {
	ID() string
	Send(event string, payload any) error
}

// Registry maps user ids to their live channels. It only routes within this
// process; persisted notifications cover users who are offline.
type Registry struct {
	mu    sync.RWMutex
	users map[string]map[string]Channel
}

func NewRegistry() *Registry {
	return &Registry{users: make(map[string]map[string]Channel)}
}

func (r *Registry) Register(userID string, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.users[userID] == nil {
		r.users[userID] = make(map[string]Channel)
	}
	r.users[userID][ch.ID()] = ch
}

// Remove drops one channel by id and forgets the user once no channels remain.
func (r *Registry) Remove(userID, channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chans, ok := r.users[userID]
	if !ok {
		return
	}
	delete(chans, channelID)
	if len(chans) == 0 {
		delete(r.users, userID)
	}
}

// Emit sends payload to every channel of userID. It returns false when the
// user has no live channels. A failing channel is logged and skipped.
func (r *Registry) Emit(userID, event string, payload any) bool {
	r.mu.RLock()
	chans := make([]Channel, 0, len(r.users[userID]))
	for _, ch := range r.users[userID] {
		chans = append(chans, ch)
	}
	r.mu.RUnlock()

	if len(chans) == 0 {
		return false
	}
	for _, ch := range chans {
		if err := ch.Send(event, payload); err != nil {
			log.Warn().Err(err).
				Str("user_id", userID).
				Str("channel_id", ch.ID()).
				Str("event", event).
				Msg("realtime delivery failed")
		}
	}
	return true
}

// Online returns the number of live channels for userID.
func (r *Registry) Online(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID])
}

// Stats returns the number of connected users and channels.
func (r *Registry) Stats() (users, channels int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, chans := range r.users {
		channels += len(chans)
	}
	return len(r.users), channels
}
