package bank

import "sync"

// Session holds the access token and item id that later calls in the same
// process default to. Storing a token activates it.
type Session struct {
	mu          sync.RWMutex
	accessToken string
	itemID      string
}

// NewSession seeds a session, usually from PLAID_ACCESS_TOKEN and PLAID_ITEM_ID.
func NewSession(accessToken, itemID string) *Session {
	return &Session{accessToken: accessToken, itemID: itemID}
}

// Current returns the active token and item id. A nil session is empty.
func (s *Session) Current() (accessToken, itemID string) {
	if s == nil {
		return "", ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken, s.itemID
}

// Activate replaces the active token and item id.
func (s *Session) Activate(accessToken, itemID string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = accessToken
	s.itemID = itemID
}
