// Package retrieval fuses semantic and episodic retrieval signals into one
// deterministically ordered, explainable result list, and hosts the dual
// search engine that orchestrates store, reranker, and context packer.
package retrieval

import (
	"math"
	"sort"
	"strings"

	"github.com/Ashish-dwi99/Engram-sub002/internal/store"
)

// FuseOptions tunes the episodic intersection boost.
type FuseOptions struct {
	// BoostWeight scales the episodic signal into a score boost.
	BoostWeight float64
	// MaxBoost caps the applied boost.
	MaxBoost float64
}

// DefaultFuseOptions returns the calibrated production defaults.
func DefaultFuseOptions() FuseOptions {
	return FuseOptions{BoostWeight: 0.22, MaxBoost: 0.35}
}

// Enriched is a semantic candidate annotated with its episodic evidence and
// final composite score. Built fresh per Fuse call, never persisted.
type Enriched struct {
	ID                   string         `json:"id"`
	Memory               string         `json:"memory"`
	Score                float64        `json:"score"`
	Masked               bool           `json:"masked,omitempty"`
	ConfidentialityScope string         `json:"confidentiality_scope,omitempty"`
	Namespace            string         `json:"namespace,omitempty"`
	Metadata             map[string]any `json:"metadata,omitempty"`

	EpisodicMatch      bool    `json:"episodic_match"`
	EpisodicSceneCount int     `json:"episodic_scene_count"`
	EpisodicSignal     float64 `json:"episodic_signal"`
	IntersectionBoost  float64 `json:"intersection_boost"`
	BaseCompositeScore float64 `json:"base_composite_score"`
	CompositeScore     float64 `json:"composite_score"`

	// semanticRank preserves original semantic order for tie-breaking.
	semanticRank int
}

// Fuse promotes semantic candidates that also appear in episodic scenes.
//
// The episodic signal for a memory id is the sum over scenes containing it
// of rankWeight(1/(1+rank)) * sceneWeight(clamp(score, 0.15, 1.0)), capped
// at 1.0. Each candidate's boost is min(MaxBoost, signal*BoostWeight) and
// its final score base*(1+boost), rounded to 6 decimals. Ordering is
// strictly deterministic: descending final score, then base score, then
// original semantic rank.
func Fuse(semantic []store.Candidate, scenes []store.Scene, opts FuseOptions) []Enriched {
	weight := clamp01(coerceFloat(opts.BoostWeight))
	cap := clamp01(coerceFloat(opts.MaxBoost))

	signal, sceneCount := buildEpisodicSignal(scenes)

	out := make([]Enriched, 0, len(semantic))
	for rank, c := range semantic {
		base := coerceFloat(c.BaseScore())
		sig := signal[c.ID]
		boost := sig * weight
		if boost > cap {
			boost = cap
		}
		final := base * (1.0 + boost)

		_, matched := signal[c.ID]
		out = append(out, Enriched{
			ID:                   c.ID,
			Memory:               c.Memory,
			Score:                c.Score,
			Masked:               c.Masked,
			ConfidentialityScope: c.ConfidentialityScope,
			Namespace:            c.Namespace,
			Metadata:             c.Metadata,
			EpisodicMatch:        matched,
			EpisodicSceneCount:   sceneCount[c.ID],
			EpisodicSignal:       round6(sig),
			IntersectionBoost:    round6(boost),
			BaseCompositeScore:   base,
			CompositeScore:       round6(final),
			semanticRank:         rank,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CompositeScore != out[j].CompositeScore {
			return out[i].CompositeScore > out[j].CompositeScore
		}
		if out[i].BaseCompositeScore != out[j].BaseCompositeScore {
			return out[i].BaseCompositeScore > out[j].BaseCompositeScore
		}
		return out[i].semanticRank < out[j].semanticRank
	})
	return out
}

// buildEpisodicSignal accumulates per-memory signal and scene counts from
// the episodic scene list. Scenes without memory ids contribute nothing but
// still occupy their rank position.
func buildEpisodicSignal(scenes []store.Scene) (map[string]float64, map[string]int) {
	signal := make(map[string]float64)
	count := make(map[string]int)

	for rank, scene := range scenes {
		var ids []string
		for _, id := range scene.MemoryIDs {
			if strings.TrimSpace(id) != "" {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			continue
		}

		rankWeight := 1.0 / (1.0 + float64(rank))
		sceneWeight := coerceFloat(scene.SearchScore)
		if sceneWeight < 0.15 {
			sceneWeight = 0.15
		} else if sceneWeight > 1.0 {
			sceneWeight = 1.0
		}
		contribution := rankWeight * sceneWeight

		for _, id := range ids {
			signal[id] += contribution
			count[id]++
		}
	}

	for id, sig := range signal {
		if sig > 1.0 {
			signal[id] = 1.0
		}
	}
	return signal, count
}

// coerceFloat maps NaN and infinities to 0 so one malformed score cannot
// poison the whole ranking.
func coerceFloat(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0.0
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
