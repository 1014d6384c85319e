package store

// Candidate is one retrieval result returned by the memory store for a
// query. The reranker consumes candidates read-only.
type Candidate struct {
	ID     string  `json:"id"`
	Memory string  `json:"memory"`
	Score  float64 `json:"score"`

	// CompositeScore is the blended relevance score when the producing
	// store computed one; nil means fall back to Score.
	CompositeScore *float64 `json:"composite_score,omitempty"`

	// Masked marks content redacted for the caller by scope enforcement.
	Masked bool `json:"masked,omitempty"`

	// ConfidentialityScope and Namespace are carried for policy layers.
	ConfidentialityScope string `json:"confidentiality_scope,omitempty"`
	Namespace            string `json:"namespace,omitempty"`

	// Metadata is the residual caller-supplied extension bag.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// BaseScore returns the composite score when present, else the raw score.
func (c Candidate) BaseScore() float64 {
	if c.CompositeScore != nil {
		return *c.CompositeScore
	}
	return c.Score
}

// Scene is an episodic grouping of memories with its own relevance rank and
// score. Scenes are derived signals; the reranker never mutates them.
type Scene struct {
	ID           string   `json:"id"`
	UserID       string   `json:"user_id,omitempty"`
	Title        string   `json:"title,omitempty"`
	Topic        string   `json:"topic,omitempty"`
	Summary      string   `json:"summary,omitempty"`
	Location     string   `json:"location,omitempty"`
	Participants []string `json:"participants,omitempty"`
	MemoryIDs    []string `json:"memory_ids"`
	Namespace    string   `json:"namespace,omitempty"`
	StartTime    string   `json:"start_time,omitempty"`
	EndTime      string   `json:"end_time,omitempty"`

	// SearchScore is the scene-level relevance assigned by scene search.
	SearchScore float64 `json:"search_score"`
}
