package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AddScene persists an episodic scene. A zero ID gets a generated one; the
// generated or given id is returned.
func (s *Store) AddScene(scene Scene) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if scene.ID == "" {
		scene.ID = uuid.NewString()
	}
	if scene.StartTime == "" {
		scene.StartTime = time.Now().UTC().Format(time.RFC3339)
	}
	if scene.EndTime == "" {
		scene.EndTime = scene.StartTime
	}
	if scene.Namespace == "" {
		scene.Namespace = "default"
	}

	participants, err := json.Marshal(orEmpty(scene.Participants))
	if err != nil {
		return "", fmt.Errorf("failed to encode participants: %w", err)
	}
	memoryIDs, err := json.Marshal(orEmpty(scene.MemoryIDs))
	if err != nil {
		return "", fmt.Errorf("failed to encode memory ids: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO scenes (id, user_id, title, topic, summary, location,
		    participants, memory_ids, namespace, start_time, end_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		scene.ID, scene.UserID, scene.Title, scene.Topic, scene.Summary,
		nullable(scene.Location), string(participants), string(memoryIDs),
		scene.Namespace, scene.StartTime, scene.EndTime)
	if err != nil {
		return "", fmt.Errorf("failed to insert scene: %w", err)
	}
	return scene.ID, nil
}

// SearchScenes scores a user's recent scenes against the query by keyword
// overlap on title/topic/summary (0.05 per matching term), breaking ties on
// recency. Returns the top limit scenes with SearchScore populated.
func (s *Store) SearchScenes(userID, query string, limit int) ([]Scene, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}
	fetch := limit * 5
	if fetch < 20 {
		fetch = 20
	}

	rows, err := s.db.Query(
		`SELECT id, user_id, title, topic, summary, location, participants,
		    memory_ids, namespace, start_time, end_time
		 FROM scenes WHERE user_id = ? ORDER BY start_time DESC LIMIT ?`,
		userID, fetch)
	if err != nil {
		return nil, fmt.Errorf("failed to query scenes: %w", err)
	}
	defer rows.Close()

	terms := queryTerms(query)

	var scored []Scene
	for rows.Next() {
		scene, err := scanScene(rows)
		if err != nil {
			return nil, err
		}
		text := strings.ToLower(scene.Title + " " + scene.Topic + " " + scene.Summary)
		hits := 0
		for _, t := range terms {
			if strings.Contains(text, t) {
				hits++
			}
		}
		scene.SearchScore = round4(float64(hits) * 0.05)
		scored = append(scored, scene)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].SearchScore != scored[j].SearchScore {
			return scored[i].SearchScore > scored[j].SearchScore
		}
		return scored[i].StartTime > scored[j].StartTime
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func scanScene(rows *sql.Rows) (Scene, error) {
	var scene Scene
	var location sql.NullString
	var participants, memoryIDs string
	err := rows.Scan(&scene.ID, &scene.UserID, &scene.Title, &scene.Topic,
		&scene.Summary, &location, &participants, &memoryIDs,
		&scene.Namespace, &scene.StartTime, &scene.EndTime)
	if err != nil {
		return Scene{}, err
	}
	scene.Location = location.String
	if err := json.Unmarshal([]byte(participants), &scene.Participants); err != nil {
		scene.Participants = nil
	}
	if err := json.Unmarshal([]byte(memoryIDs), &scene.MemoryIDs); err != nil {
		scene.MemoryIDs = nil
	}
	return scene, nil
}

func orEmpty(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

func round4(v float64) float64 {
	return float64(int64(v*10000+0.5)) / 10000
}
