package store

import (
	"errors"
	"testing"
	"time"
)

// newSessionStore is a test store with the governance schema applied, since
// the sessions table is created by gov_004.
func newSessionStore(t *testing.T) *Store {
	t.Helper()
	s := newTestStore(t)
	if _, err := s.Extend(); err != nil {
		t.Fatalf("Extend failed: %v", err)
	}
	return s
}

func testSession(expiresAt time.Time) Session {
	return Session{
		ID:           "sess-1",
		TokenHash:    "hash-1",
		UserID:       "u1",
		AgentID:      "agent-a",
		Scopes:       []string{"work"},
		Capabilities: []string{"search", "read_scene"},
		Namespaces:   []string{"default"},
		ExpiresAt:    expiresAt,
	}
}

func TestSessionRoundTrip(t *testing.T) {
	s := newSessionStore(t)
	now := time.Now().UTC()

	if err := s.InsertSession(testSession(now.Add(time.Hour))); err != nil {
		t.Fatalf("InsertSession failed: %v", err)
	}

	got, err := s.SessionByTokenHash("hash-1", now)
	if err != nil {
		t.Fatalf("SessionByTokenHash failed: %v", err)
	}
	if got.ID != "sess-1" || got.UserID != "u1" || got.AgentID != "agent-a" {
		t.Errorf("Session = %+v, want sess-1/u1/agent-a", got)
	}
	if len(got.Capabilities) != 2 || got.Capabilities[0] != "search" {
		t.Errorf("Capabilities = %v, want [search read_scene]", got.Capabilities)
	}
	if len(got.Scopes) != 1 || got.Scopes[0] != "work" {
		t.Errorf("Scopes = %v, want [work]", got.Scopes)
	}
}

func TestSessionUnknownHash(t *testing.T) {
	s := newSessionStore(t)

	_, err := s.SessionByTokenHash("no-such-hash", time.Now())
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Error = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionExpired(t *testing.T) {
	s := newSessionStore(t)
	now := time.Now().UTC()

	if err := s.InsertSession(testSession(now.Add(-time.Minute))); err != nil {
		t.Fatalf("InsertSession failed: %v", err)
	}

	_, err := s.SessionByTokenHash("hash-1", now)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expired session resolved: err = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionRevoke(t *testing.T) {
	s := newSessionStore(t)
	now := time.Now().UTC()

	if err := s.InsertSession(testSession(now.Add(time.Hour))); err != nil {
		t.Fatalf("InsertSession failed: %v", err)
	}
	if err := s.RevokeSession("sess-1", now); err != nil {
		t.Fatalf("RevokeSession failed: %v", err)
	}

	_, err := s.SessionByTokenHash("hash-1", now)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Revoked session resolved: err = %v, want ErrSessionNotFound", err)
	}

	// A second revoke finds nothing to revoke.
	if err := s.RevokeSession("sess-1", now); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Second revoke err = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionDuplicateTokenHashRejected(t *testing.T) {
	s := newSessionStore(t)
	now := time.Now().UTC()

	if err := s.InsertSession(testSession(now.Add(time.Hour))); err != nil {
		t.Fatalf("InsertSession failed: %v", err)
	}
	dup := testSession(now.Add(time.Hour))
	dup.ID = "sess-2"
	if err := s.InsertSession(dup); err == nil {
		t.Error("Duplicate token hash accepted, want unique constraint error")
	}
}
