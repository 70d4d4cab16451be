package bank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dvloznov/bank-data-pipeline/internal/logger"
)

// TokenSource tags where an access token came from.
type TokenSource string

const (
	SourceManual     TokenSource = "manual"
	SourceExchange   TokenSource = "exchange"
	SourceTokenStore TokenSource = "token_store"

	// Resolution tags name the configuration value a token was taken from.
	SourceCurrentToken TokenSource = "PLAID_ACCESS_TOKEN"
	SourceTokenList    TokenSource = "PLAID_ACCESS_TOKENS"
	SourcePublicToken  TokenSource = "PLAID_PUBLIC_TOKEN"
)

// ItemMetadata records how and when an item's token was last stored.
type ItemMetadata struct {
	Source    TokenSource `json:"source"`
	UpdatedAt string      `json:"updated_at"`
}

// TokenStoreDocument is the on-disk token store. Fields are declared in key
// order so the encoded document has sorted keys.
type TokenStoreDocument struct {
	ItemMetadata map[string]ItemMetadata `json:"item_metadata,omitempty"`
	Items        map[string]string       `json:"items"`
	LastItemID   string                  `json:"last_item_id,omitempty"`
	LastUpdated  string                  `json:"last_updated,omitempty"`

	// order is the sequence item ids appeared in the file, then insertion order.
	order []string
}

// UnmarshalJSON decodes the document and remembers the on-disk order of items.
func (d *TokenStoreDocument) UnmarshalJSON(data []byte) error {
	type plain TokenStoreDocument
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw struct {
		Items json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	order, err := objectKeys(raw.Items)
	if err != nil {
		return err
	}
	*d = TokenStoreDocument(p)
	d.order = order
	return nil
}

// objectKeys lists the keys of a JSON object in document order.
func objectKeys(raw json.RawMessage) ([]string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("objectKeys: unexpected token %v", tok)
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// ItemIDs returns the item ids in file order, followed by any ids added in
// memory without an order record, sorted.
func (d *TokenStoreDocument) ItemIDs() []string {
	ids := make([]string, 0, len(d.Items))
	listed := make(map[string]bool, len(d.order))
	for _, id := range d.order {
		if _, ok := d.Items[id]; ok && !listed[id] {
			listed[id] = true
			ids = append(ids, id)
		}
	}
	var rest []string
	for id := range d.Items {
		if !listed[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(ids, rest...)
}

// SetItem upserts an item's token and metadata.
func (d *TokenStoreDocument) SetItem(itemID, token string, meta ItemMetadata) {
	if d.Items == nil {
		d.Items = make(map[string]string)
	}
	if d.ItemMetadata == nil {
		d.ItemMetadata = make(map[string]ItemMetadata)
	}
	if _, exists := d.Items[itemID]; !exists {
		d.order = append(d.order, itemID)
	}
	d.Items[itemID] = token
	d.ItemMetadata[itemID] = meta
}

// StoredToken describes a token persisted by StoreAccessToken.
type StoredToken struct {
	AccessToken string      `json:"access_token"`
	ItemID      string      `json:"item_id"`
	Source      TokenSource `json:"source"`
	StoredAt    time.Time   `json:"stored_at"`
}

// TokenStore persists access tokens to a JSON file. Writes are
// read-modify-write without locking; concurrent processes can lose updates.
type TokenStore struct {
	path    string
	session *Session
	now     func() time.Time
}

// NewTokenStore returns a store backed by path. Tokens it stores are
// activated on session, which may be nil.
func NewTokenStore(path string, session *Session) *TokenStore {
	return &TokenStore{
		path:    path,
		session: session,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Path returns the backing file location.
func (s *TokenStore) Path() string { return s.path }

// Read loads the document. A missing or unreadable file yields an empty
// document; read failures are logged, never returned.
func (s *TokenStore) Read(ctx context.Context) TokenStoreDocument {
	log := logger.FromContext(ctx)
	empty := TokenStoreDocument{Items: map[string]string{}}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(&FileIOError{Op: "read", Path: s.path, Err: err}).Msg("Unable to read token store")
		}
		return empty
	}

	var doc TokenStoreDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("Unable to parse token store")
		return empty
	}
	if doc.Items == nil {
		doc.Items = map[string]string{}
	}
	return doc
}

// Write overwrites the store file with doc as indented JSON with sorted keys.
func (s *TokenStore) Write(ctx context.Context, doc TokenStoreDocument) error {
	if doc.Items == nil {
		doc.Items = map[string]string{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return &FileIOError{Op: "encode", Path: s.path, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return &FileIOError{Op: "mkdir", Path: filepath.Dir(s.path), Err: err}
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return &FileIOError{Op: "write", Path: s.path, Err: err}
	}
	log := logger.FromContext(ctx)
	log.Debug().Str("path", s.path).Int("items", len(doc.Items)).Msg("Token store written")
	return nil
}

// StoreAccessToken validates token, upserts it under itemID and activates it
// on the session. Without an item id the session's current item id is used,
// and failing that a manual_<UTC timestamp> id is generated.
func (s *TokenStore) StoreAccessToken(ctx context.Context, token, itemID string, source TokenSource) (StoredToken, error) {
	token = strings.TrimSpace(token)
	if !ValidAccessToken(token) {
		return StoredToken{}, &AccessTokenError{
			Message: "Provided access token is invalid. Expected format: access-<environment>-<identifier>",
		}
	}
	if source == "" {
		source = SourceManual
	}

	now := s.now()
	resolvedItemID := strings.TrimSpace(itemID)
	if resolvedItemID == "" {
		_, current := s.session.Current()
		resolvedItemID = strings.TrimSpace(current)
	}
	if resolvedItemID == "" {
		resolvedItemID = "manual_" + now.Format("20060102150405")
	}

	stamp := now.Format(time.RFC3339)
	doc := s.Read(ctx)
	doc.SetItem(resolvedItemID, token, ItemMetadata{Source: source, UpdatedAt: stamp})
	doc.LastUpdated = stamp
	doc.LastItemID = resolvedItemID

	if err := s.Write(ctx, doc); err != nil {
		return StoredToken{}, err
	}
	s.session.Activate(token, resolvedItemID)

	log := logger.FromContext(ctx)
	log.Info().
		Str("item_id", resolvedItemID).
		Str("source", string(source)).
		Str("token", MaskToken(token)).
		Msg("Stored access token")

	return StoredToken{
		AccessToken: token,
		ItemID:      resolvedItemID,
		Source:      source,
		StoredAt:    now,
	}, nil
}
