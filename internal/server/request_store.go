package server

import (
	"sync"
	"time"

	"github.com/scrubgate-ai/scrubgate/internal/audit"
)

// requestStore keeps recent request outcomes for /v1/requests lookups.
// Entries hold the metadata-only audit event, never query text, and expire
// after the configured TTL.
type requestStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	data map[string]requestEntry
}

type requestEntry struct {
	clientID  string
	status    string
	event     *audit.Event
	expiresAt time.Time
}

func newRequestStore(ttl time.Duration) *requestStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &requestStore{
		ttl:  ttl,
		data: make(map[string]requestEntry),
	}
}

func (s *requestStore) Start(requestID, clientID string) {
	if s == nil || requestID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked()
	s.data[requestID] = requestEntry{
		clientID:  clientID,
		status:    "pending",
		expiresAt: time.Now().Add(s.ttl),
	}
}

func (s *requestStore) Complete(requestID string, ev *audit.Event) {
	if s == nil || requestID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked()
	entry := requestEntry{
		status:    "completed",
		event:     ev,
		expiresAt: time.Now().Add(s.ttl),
	}
	if existing, ok := s.data[requestID]; ok {
		entry.clientID = existing.clientID
	} else if ev != nil {
		entry.clientID = ev.ClientID
	}
	s.data[requestID] = entry
}

func (s *requestStore) Get(requestID string) (requestEntry, bool) {
	if s == nil || requestID == "" {
		return requestEntry{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked()
	entry, ok := s.data[requestID]
	if !ok {
		return requestEntry{}, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.data, requestID)
		return requestEntry{}, false
	}
	return entry, true
}

func (s *requestStore) cleanupLocked() {
	now := time.Now()
	for k, v := range s.data {
		if now.After(v.expiresAt) {
			delete(s.data, k)
		}
	}
}
