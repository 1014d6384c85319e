package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// AddMemory inserts a memory row and returns its id. Used by the CLI and
// tests; production writes arrive through the governed-write path of the
// core memory service.
func (s *Store) AddMemory(userID, agentID, text string, metadata map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	meta := "{}"
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return "", fmt.Errorf("failed to encode metadata: %w", err)
		}
		meta = string(raw)
	}
	_, err := s.db.Exec(
		`INSERT INTO memories (id, user_id, agent_id, memory, metadata) VALUES (?, ?, ?, ?, ?)`,
		id, userID, nullable(agentID), text, meta)
	if err != nil {
		return "", fmt.Errorf("failed to insert memory: %w", err)
	}
	return id, nil
}

// SearchMemories is a keyword-overlap semantic stand-in over the memories
// table: score = fraction of query terms present in the memory text.
// Real deployments plug an embedding-backed searcher in at the engine
// boundary; this keeps the CLI and tests self-contained.
func (s *Store) SearchMemories(userID, query string, limit int) ([]Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}
	terms := queryTerms(query)

	rows, err := s.db.Query(
		`SELECT id, memory, confidentiality_scope, namespace, metadata
		 FROM memories WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`,
		userID, limit*5)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		var scope, namespace, meta sql.NullString
		if err := rows.Scan(&c.ID, &c.Memory, &scope, &namespace, &meta); err != nil {
			return nil, err
		}
		c.ConfidentialityScope = scope.String
		c.Namespace = namespace.String
		if meta.Valid && meta.String != "" && meta.String != "{}" {
			_ = json.Unmarshal([]byte(meta.String), &c.Metadata)
		}
		c.Score = keywordScore(terms, c.Memory)
		if c.Score > 0 {
			out = append(out, c)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortCandidatesByScore(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	seen := make(map[string]bool, len(fields))
	var terms []string
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			terms = append(terms, f)
		}
	}
	return terms
}

func keywordScore(terms []string, text string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	hits := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

// sortCandidatesByScore orders by score descending, id ascending on ties so
// results are stable across runs.
func sortCandidatesByScore(cs []Candidate) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Score != cs[j].Score {
			return cs[i].Score > cs[j].Score
		}
		return cs[i].ID < cs[j].ID
	})
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
