package context

import (
	"sort"

	"github.com/Ashish-dwi99/Engram-sub002/internal/store"
)

// Item is one ranked candidate offered to the packer. Callers pass items in
// their final ranked order; the packer never reorders.
type Item struct {
	ID     string
	Text   string
	Masked bool
	Score  float64
}

// Snippet is one emitted context entry.
type Snippet struct {
	MemoryID  string    `json:"memory_id"`
	Text      string    `json:"text"`
	Masked    bool      `json:"masked"`
	Score     float64   `json:"score"`
	Citations Citations `json:"citations"`
}

// Citations carries the shared episodic citation context for a snippet.
type Citations struct {
	SceneIDs []string `json:"scene_ids"`
}

// TokenUsage accounts for the packet's estimated token consumption.
type TokenUsage struct {
	EstimatedTokens int `json:"estimated_tokens"`
	Budget          int `json:"budget"`
}

// Masking accounts for redacted candidates seen while packing.
type Masking struct {
	MaskedCount     int `json:"masked_count"`
	TotalCandidates int `json:"total_candidates"`
}

// Packet is the bounded retrieval response payload. Immutable once built.
type Packet struct {
	Query      string     `json:"query"`
	Snippets   []Snippet  `json:"snippets"`
	TokenUsage TokenUsage `json:"token_usage"`
	Masking    Masking    `json:"masking"`
}

// PackOptions bounds the packet. Non-positive fields fall back to defaults.
type PackOptions struct {
	MaxTokens int // token budget, default 800
	MaxItems  int // snippet cap, default 8
}

// Pack greedily packs ranked candidates into a token-bounded packet.
//
// At most 3*MaxItems candidates are considered. A candidate whose cost
// would exceed the budget stops the scan, except that the first snippet is
// always admitted so a single oversized candidate cannot starve the
// response. Candidates are never split. Masked candidates are counted for
// every candidate scanned, included or not. Token usage includes the
// query's own estimated cost.
func Pack(query string, results []Item, scenes []store.Scene, opts PackOptions) Packet {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 800
	}
	maxItems := opts.MaxItems
	if maxItems <= 0 {
		maxItems = 8
	}

	sceneIDs := collectSceneIDs(scenes)

	tokenUsed := EstimateTokens(query)
	maskedCount := 0
	var snippets []Snippet

	window := results
	if len(window) > maxItems*3 {
		window = window[:maxItems*3]
	}

	for _, item := range window {
		if item.Masked {
			maskedCount++
		}
		cost := EstimateTokens(item.Text)
		if tokenUsed+cost > maxTokens && len(snippets) > 0 {
			break
		}

		snippets = append(snippets, Snippet{
			MemoryID:  item.ID,
			Text:      item.Text,
			Masked:    item.Masked,
			Score:     item.Score,
			Citations: Citations{SceneIDs: sceneIDs},
		})
		tokenUsed += cost
		if len(snippets) >= maxItems {
			break
		}
	}

	return Packet{
		Query:    query,
		Snippets: snippets,
		TokenUsage: TokenUsage{
			EstimatedTokens: tokenUsed,
			Budget:          maxTokens,
		},
		Masking: Masking{
			MaskedCount:     maskedCount,
			TotalCandidates: len(results),
		},
	}
}

// collectSceneIDs returns the sorted set of non-empty scene ids. Sorted so
// identical inputs produce byte-identical packets.
func collectSceneIDs(scenes []store.Scene) []string {
	seen := make(map[string]bool, len(scenes))
	ids := make([]string, 0, len(scenes))
	for _, scene := range scenes {
		if scene.ID != "" && !seen[scene.ID] {
			seen[scene.ID] = true
			ids = append(ids, scene.ID)
		}
	}
	sort.Strings(ids)
	return ids
}
