package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/Ashish-dwi99/Engram-sub002/internal/logging"
	"github.com/Ashish-dwi99/Engram-sub002/internal/observability"
	"github.com/Ashish-dwi99/Engram-sub002/internal/store"
)

// Default grants for freshly issued sessions.
var (
	DefaultScopes       = []string{"work"}
	DefaultCapabilities = []string{
		"search",
		"propose_write",
		"read_scene",
		"review_commits",
		"resolve_conflicts",
		"read_digest",
	}
	DefaultNamespaces = []string{"default"}
)

// resolveCacheTTL bounds how long a resolved session may be served from
// cache. Revocation can lag by at most this much.
const resolveCacheTTL = 30 * time.Second

// SessionManager issues and resolves capability-token sessions backed by
// the sessions table.
type SessionManager struct {
	store      *store.Store
	cache      *gocache.Cache
	defaultTTL time.Duration
}

// NewSessionManager creates a manager over the given store.
func NewSessionManager(st *store.Store, defaultTTL time.Duration) *SessionManager {
	if defaultTTL <= 0 {
		defaultTTL = 24 * time.Hour
	}
	return &SessionManager{
		store:      st,
		cache:      gocache.New(resolveCacheTTL, time.Minute),
		defaultTTL: defaultTTL,
	}
}

// IssueRequest describes the session to mint.
type IssueRequest struct {
	UserID       string   `json:"user_id"`
	AgentID      string   `json:"agent_id,omitempty"`
	Scopes       []string `json:"allowed_confidentiality_scopes,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	Namespaces   []string `json:"namespaces,omitempty"`
	TTLMinutes   int      `json:"ttl_minutes,omitempty"`
}

// Issued is the response to a successful session mint. Token is the only
// place the plaintext token ever appears; the store keeps its hash.
type Issued struct {
	ID        string   `json:"id"`
	Token     string   `json:"token"`
	UserID    string   `json:"user_id"`
	AgentID   string   `json:"agent_id,omitempty"`
	Scopes    []string `json:"allowed_confidentiality_scopes"`
	ExpiresAt string   `json:"expires_at"`
}

// Issue mints an opaque capability token and persists its session row.
func (m *SessionManager) Issue(req IssueRequest) (*Issued, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}

	ttl := m.defaultTTL
	if req.TTLMinutes > 0 {
		ttl = time.Duration(req.TTLMinutes) * time.Minute
	}

	sess := store.Session{
		ID:           uuid.NewString(),
		TokenHash:    HashToken(token),
		UserID:       req.UserID,
		AgentID:      req.AgentID,
		Scopes:       withDefault(req.Scopes, DefaultScopes),
		Capabilities: withDefault(req.Capabilities, DefaultCapabilities),
		Namespaces:   withDefault(req.Namespaces, DefaultNamespaces),
		ExpiresAt:    time.Now().UTC().Add(ttl),
	}
	if err := m.store.InsertSession(sess); err != nil {
		return nil, err
	}

	observability.SessionsIssued.Inc()
	logging.L(logging.CategoryAuth).Infow("session issued",
		"user", sess.UserID, "agent", sess.AgentID, "expires_at", sess.ExpiresAt)

	return &Issued{
		ID:        sess.ID,
		Token:     token,
		UserID:    sess.UserID,
		AgentID:   sess.AgentID,
		Scopes:    sess.Scopes,
		ExpiresAt: sess.ExpiresAt.Format(time.RFC3339),
	}, nil
}

// Resolve returns the live session for a plaintext token, or
// store.ErrSessionNotFound. Hits are cached briefly.
func (m *SessionManager) Resolve(token string) (*store.Session, error) {
	if token == "" {
		return nil, store.ErrSessionNotFound
	}
	hash := HashToken(token)
	if cached, ok := m.cache.Get(hash); ok {
		sess := cached.(*store.Session)
		if time.Now().Before(sess.ExpiresAt) {
			return sess, nil
		}
		m.cache.Delete(hash)
		return nil, store.ErrSessionNotFound
	}

	sess, err := m.store.SessionByTokenHash(hash, time.Now())
	if err != nil {
		return nil, err
	}
	m.cache.SetDefault(hash, sess)
	return sess, nil
}

// Revoke revokes a session by id and drops any cached resolution.
func (m *SessionManager) Revoke(id string) error {
	if err := m.store.RevokeSession(id, time.Now()); err != nil {
		return err
	}
	// The cache is keyed by token hash, which we no longer know here;
	// entries age out within resolveCacheTTL.
	return nil
}

// HashToken returns the hex SHA-256 of a plaintext token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func withDefault(values, fallback []string) []string {
	if len(values) == 0 {
		out := make([]string, len(fallback))
		copy(out, fallback)
		return out
	}
	return values
}
