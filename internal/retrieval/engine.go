package retrieval

import (
	"fmt"
	"time"

	"github.com/Ashish-dwi99/Engram-sub002/internal/context"
	"github.com/Ashish-dwi99/Engram-sub002/internal/logging"
	"github.com/Ashish-dwi99/Engram-sub002/internal/observability"
	"github.com/Ashish-dwi99/Engram-sub002/internal/store"
)

// SemanticSearcher supplies semantic candidates for a query. The production
// memory/embedding store lives behind this boundary; *store.Store provides
// a keyword-based implementation for local use.
type SemanticSearcher interface {
	SearchMemories(userID, query string, limit int) ([]store.Candidate, error)
}

// SceneSearcher supplies ranked episodic scenes for a query.
type SceneSearcher interface {
	SearchScenes(userID, query string, limit int) ([]store.Scene, error)
}

// EngineOptions tunes fusion and packing for one engine instance.
type EngineOptions struct {
	BoostWeight float64
	BoostCap    float64
	MaxTokens   int
	MaxItems    int
}

// DefaultEngineOptions mirrors the calibrated production defaults.
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{BoostWeight: 0.22, BoostCap: 0.35, MaxTokens: 800, MaxItems: 8}
}

// Engine runs dual retrieval: semantic + episodic with intersection
// promotion and token-bounded packing.
type Engine struct {
	semantic SemanticSearcher
	scenes   SceneSearcher
	opts     EngineOptions
}

// NewEngine creates a dual search engine over the given searchers.
func NewEngine(semantic SemanticSearcher, scenes SceneSearcher, opts EngineOptions) *Engine {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 800
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = 8
	}
	return &Engine{semantic: semantic, scenes: scenes, opts: opts}
}

// Request is one dual search invocation.
type Request struct {
	Query   string `json:"query"`
	UserID  string `json:"user_id"`
	AgentID string `json:"agent_id,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// Trace explains how a response was ranked.
type Trace struct {
	RankingVersion    string  `json:"ranking_version"`
	Strategy          string  `json:"strategy"`
	BoostWeight       float64 `json:"boost_weight"`
	BoostCap          float64 `json:"boost_cap"`
	EpisodicScenes    int     `json:"episodic_scenes"`
	IntersectionCount int     `json:"intersections"`
	BoostedCount      int     `json:"boosted"`
}

// Response is the complete dual search result.
type Response struct {
	Results       []Enriched     `json:"results"`
	Count         int            `json:"count"`
	ContextPacket context.Packet `json:"context_packet"`
	Trace         Trace          `json:"retrieval_trace"`
}

// Search fetches both signals, fuses them, and packs the bounded response.
func (e *Engine) Search(req Request) (*Response, error) {
	start := time.Now()
	log := logging.L(logging.CategoryRetrieval)

	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	semLimit := limit * 2
	if semLimit < 10 {
		semLimit = 10
	}
	sceneLimit := limit
	if sceneLimit < 5 {
		sceneLimit = 5
	}

	semantic, err := e.semantic.SearchMemories(req.UserID, req.Query, semLimit)
	if err != nil {
		return nil, fmt.Errorf("semantic search failed: %w", err)
	}
	scenes, err := e.scenes.SearchScenes(req.UserID, req.Query, sceneLimit)
	if err != nil {
		return nil, fmt.Errorf("scene search failed: %w", err)
	}

	fused := Fuse(semantic, scenes, FuseOptions{
		BoostWeight: e.opts.BoostWeight,
		MaxBoost:    e.opts.BoostCap,
	})

	intersections := 0
	boosted := 0
	for _, item := range fused {
		if item.EpisodicMatch {
			intersections++
		}
		if item.IntersectionBoost > 0 {
			boosted++
		}
	}

	final := fused
	if len(final) > limit {
		final = final[:limit]
	}

	maskedCount := 0
	items := make([]context.Item, 0, len(final))
	for _, r := range final {
		if r.Masked {
			maskedCount++
		}
		items = append(items, context.Item{
			ID:     r.ID,
			Text:   r.Memory,
			Masked: r.Masked,
			Score:  r.CompositeScore,
		})
	}

	maxItems := e.opts.MaxItems
	if limit < maxItems {
		maxItems = limit
	}
	packet := context.Pack(req.Query, items, scenes, context.PackOptions{
		MaxTokens: e.opts.MaxTokens,
		MaxItems:  maxItems,
	})

	observability.ObserveSearch(time.Since(start), maskedCount)
	log.Debugw("dual search complete",
		"query", req.Query, "semantic", len(semantic), "scenes", len(scenes),
		"results", len(final), "intersections", intersections, "masked", maskedCount)

	return &Response{
		Results:       final,
		Count:         len(final),
		ContextPacket: packet,
		Trace: Trace{
			RankingVersion:    "dual_intersection_v2",
			Strategy:          "semantic_plus_episodic_intersection",
			BoostWeight:       e.opts.BoostWeight,
			BoostCap:          e.opts.BoostCap,
			EpisodicScenes:    len(scenes),
			IntersectionCount: intersections,
			BoostedCount:      boosted,
		},
	}, nil
}
