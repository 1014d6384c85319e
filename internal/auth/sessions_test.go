package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Ashish-dwi99/Engram-sub002/internal/store"
)

func newSessionManager(t *testing.T) (*SessionManager, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Bootstrap(); err != nil {
		t.Fatalf("Failed to bootstrap store: %v", err)
	}
	if _, err := st.Extend(); err != nil {
		t.Fatalf("Extend failed: %v", err)
	}
	return NewSessionManager(st, time.Hour), st
}

func TestIssueDefaults(t *testing.T) {
	m, _ := newSessionManager(t)

	issued, err := m.Issue(IssueRequest{UserID: "u1"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if issued.ID == "" {
		t.Error("Issued session has no id")
	}
	// 32 random bytes hex encoded.
	if len(issued.Token) != 64 {
		t.Errorf("Token length = %d, want 64", len(issued.Token))
	}
	if len(issued.Scopes) != 1 || issued.Scopes[0] != "work" {
		t.Errorf("Scopes = %v, want default [work]", issued.Scopes)
	}
	if _, err := time.Parse(time.RFC3339, issued.ExpiresAt); err != nil {
		t.Errorf("ExpiresAt %q not RFC 3339: %v", issued.ExpiresAt, err)
	}
}

func TestIssueRequiresUser(t *testing.T) {
	m, _ := newSessionManager(t)
	if _, err := m.Issue(IssueRequest{}); err == nil {
		t.Error("Issue without user_id succeeded")
	}
}

func TestIssueAndResolve(t *testing.T) {
	m, _ := newSessionManager(t)

	issued, err := m.Issue(IssueRequest{
		UserID:       "u1",
		AgentID:      "agent-a",
		Capabilities: []string{"search"},
	})
	require.NoError(t, err)

	sess, err := m.Resolve(issued.Token)
	require.NoError(t, err)
	require.Equal(t, "u1", sess.UserID)
	require.Equal(t, "agent-a", sess.AgentID)
	require.Equal(t, []string{"search"}, sess.Capabilities)

	// Second resolve serves from cache and agrees.
	again, err := m.Resolve(issued.Token)
	require.NoError(t, err)
	require.Equal(t, sess.ID, again.ID)
}

func TestResolveUnknownToken(t *testing.T) {
	m, _ := newSessionManager(t)

	if _, err := m.Resolve("deadbeef"); !errors.Is(err, store.ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
	if _, err := m.Resolve(""); !errors.Is(err, store.ErrSessionNotFound) {
		t.Errorf("Empty token err = %v, want ErrSessionNotFound", err)
	}
}

func TestResolveExpiredSession(t *testing.T) {
	m, st := newSessionManager(t)

	// Insert a session that is already past its expiry.
	token := "expired-token"
	err := st.InsertSession(store.Session{
		ID:        uuid.NewString(),
		TokenHash: HashToken(token),
		UserID:    "u1",
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("InsertSession failed: %v", err)
	}

	if _, err := m.Resolve(token); !errors.Is(err, store.ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestRevokeStopsFreshResolves(t *testing.T) {
	m, st := newSessionManager(t)

	issued, err := m.Issue(IssueRequest{UserID: "u1"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if err := m.Revoke(issued.ID); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	// A manager without the cached entry must refuse the token.
	fresh := NewSessionManager(st, time.Hour)
	if _, err := fresh.Resolve(issued.Token); !errors.Is(err, store.ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestHashToken(t *testing.T) {
	h := HashToken("abc")
	if len(h) != 64 {
		t.Errorf("Hash length = %d, want 64", len(h))
	}
	if h != HashToken("abc") {
		t.Error("HashToken not deterministic")
	}
	if h == HashToken("abd") {
		t.Error("Distinct tokens hashed identically")
	}
}
