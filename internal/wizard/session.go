package wizard

import (
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"

	"github.com/guy-hartstein/syncforge/internal/model"
)

// sessionTTL is how long an idle wizard session survives. Touched on every
// read and write, so active sessions never expire mid-conversation.
const sessionTTL = 30 * time.Minute

// Session is the accumulating state of one wizard conversation. Sessions are
// ephemeral; nothing is persisted until the user creates the change request.
type Session struct {
	ID       uuid.UUID       `json:"id"`
	Messages []model.Message `json:"messages"`

	Attachments []model.Attachment `json:"attachments"`
	// SelectedIntegrationIDs is the fan-out chosen so far; empty means all.
	SelectedIntegrationIDs []uuid.UUID `json:"selected_integration_ids"`
	// CustomInstructions holds per-integration instruction overrides keyed by
	// integration id.
	CustomInstructions map[uuid.UUID]string `json:"custom_instructions"`

	// ReadyToProceed flips once the assistant judges the request specific
	// enough to draft an implementation guide.
	ReadyToProceed bool `json:"ready_to_proceed"`

	CreatedAt time.Time `json:"created_at"`
}

// SessionStore keeps wizard sessions in memory with idle expiry.
type SessionStore struct {
	cache *ttlcache.Cache[uuid.UUID, *Session]
}

// NewSessionStore creates a store and starts its expiry loop. Stop releases
// the loop.
func NewSessionStore() *SessionStore {
	cache := ttlcache.New[uuid.UUID, *Session](
		ttlcache.WithTTL[uuid.UUID, *Session](sessionTTL),
	)
	go cache.Start()
	return &SessionStore{cache: cache}
}

// Create registers a fresh session.
func (s *SessionStore) Create() *Session {
	sess := &Session{
		ID:                 uuid.New(),
		CustomInstructions: map[uuid.UUID]string{},
		CreatedAt:          time.Now().UTC(),
	}
	s.cache.Set(sess.ID, sess, ttlcache.DefaultTTL)
	return sess
}

// Get returns a live session, refreshing its TTL, or nil when expired or
// unknown.
func (s *SessionStore) Get(id uuid.UUID) *Session {
	item := s.cache.Get(id) // Get touches the TTL by default
	if item == nil {
		return nil
	}
	return item.Value()
}

// Save writes the session back, refreshing its TTL.
func (s *SessionStore) Save(sess *Session) {
	s.cache.Set(sess.ID, sess, ttlcache.DefaultTTL)
}

// Delete removes a session, e.g. after its change request is created.
func (s *SessionStore) Delete(id uuid.UUID) {
	s.cache.Delete(id)
}

// Stop halts the expiry loop.
func (s *SessionStore) Stop() {
	s.cache.Stop()
}
