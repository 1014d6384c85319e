package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrSessionNotFound is returned when no live session matches a token hash.
var ErrSessionNotFound = errors.New("session not found")

// Session is one row of the sessions table. Tokens are never stored; only
// their SHA-256 hash is.
type Session struct {
	ID           string
	TokenHash    string
	UserID       string
	AgentID      string
	Scopes       []string
	Capabilities []string
	Namespaces   []string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	RevokedAt    *time.Time
}

// InsertSession persists a freshly issued session.
func (s *Store) InsertSession(sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scopes, err := json.Marshal(orEmpty(sess.Scopes))
	if err != nil {
		return fmt.Errorf("failed to encode scopes: %w", err)
	}
	caps, err := json.Marshal(orEmpty(sess.Capabilities))
	if err != nil {
		return fmt.Errorf("failed to encode capabilities: %w", err)
	}
	namespaces, err := json.Marshal(orEmpty(sess.Namespaces))
	if err != nil {
		return fmt.Errorf("failed to encode namespaces: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO sessions (id, token_hash, user_id, agent_id,
		    allowed_confidentiality_scopes, capabilities, namespaces, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.TokenHash, sess.UserID, nullable(sess.AgentID),
		string(scopes), string(caps), string(namespaces),
		sess.ExpiresAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// SessionByTokenHash returns the live (unexpired, unrevoked) session for a
// token hash, or ErrSessionNotFound.
func (s *Store) SessionByTokenHash(hash string, now time.Time) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		`SELECT id, token_hash, user_id, agent_id,
		    allowed_confidentiality_scopes, capabilities, namespaces, expires_at
		 FROM sessions
		 WHERE token_hash = ? AND revoked_at IS NULL`, hash)

	var sess Session
	var agentID sql.NullString
	var scopes, caps, namespaces, expires string
	err := row.Scan(&sess.ID, &sess.TokenHash, &sess.UserID, &agentID,
		&scopes, &caps, &namespaces, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	sess.AgentID = agentID.String
	_ = json.Unmarshal([]byte(scopes), &sess.Scopes)
	_ = json.Unmarshal([]byte(caps), &sess.Capabilities)
	_ = json.Unmarshal([]byte(namespaces), &sess.Namespaces)

	expiresAt, err := time.Parse(time.RFC3339, expires)
	if err != nil {
		return nil, fmt.Errorf("corrupt expires_at on session %s: %w", sess.ID, err)
	}
	sess.ExpiresAt = expiresAt
	if !now.Before(expiresAt) {
		return nil, ErrSessionNotFound
	}
	return &sess, nil
}

// RevokeSession marks a session revoked by id. Revoked sessions no longer
// resolve.
func (s *Store) RevokeSession(id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE sessions SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`,
		now.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}
