package retrieval

import (
	"math"
	"testing"

	"github.com/Ashish-dwi99/Engram-sub002/internal/store"
)

func approxEq(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestFuseIntersectionBoost(t *testing.T) {
	semantic := []store.Candidate{
		{ID: "a", Memory: "coffee preference", Score: 0.5},
		{ID: "b", Memory: "deadline friday", Score: 0.9},
	}
	scenes := []store.Scene{
		{ID: "s1", SearchScore: 0.8, MemoryIDs: []string{"a"}},
	}

	out := Fuse(semantic, scenes, DefaultFuseOptions())
	if len(out) != 2 {
		t.Fatalf("Got %d results, want 2", len(out))
	}

	// b has no episodic evidence and keeps its base score; it still
	// outranks the boosted a.
	if out[0].ID != "b" {
		t.Errorf("First result = %s, want b", out[0].ID)
	}
	if !approxEq(out[0].CompositeScore, 0.9) {
		t.Errorf("b composite = %g, want 0.9", out[0].CompositeScore)
	}
	if out[0].EpisodicMatch {
		t.Error("b marked as episodic match")
	}

	// a: signal = 1/(1+0) * 0.8 = 0.8, boost = 0.8*0.22 = 0.176,
	// final = 0.5 * 1.176 = 0.588.
	a := out[1]
	if a.ID != "a" {
		t.Fatalf("Second result = %s, want a", a.ID)
	}
	if !a.EpisodicMatch {
		t.Error("a not marked as episodic match")
	}
	if a.EpisodicSceneCount != 1 {
		t.Errorf("a scene count = %d, want 1", a.EpisodicSceneCount)
	}
	if !approxEq(a.EpisodicSignal, 0.8) {
		t.Errorf("a signal = %g, want 0.8", a.EpisodicSignal)
	}
	if !approxEq(a.IntersectionBoost, 0.176) {
		t.Errorf("a boost = %g, want 0.176", a.IntersectionBoost)
	}
	if !approxEq(a.CompositeScore, 0.588) {
		t.Errorf("a composite = %g, want 0.588", a.CompositeScore)
	}
	if !approxEq(a.BaseCompositeScore, 0.5) {
		t.Errorf("a base = %g, want 0.5", a.BaseCompositeScore)
	}
}

func TestFuseBoostCapped(t *testing.T) {
	semantic := []store.Candidate{{ID: "a", Score: 0.5}}
	scenes := []store.Scene{
		{ID: "s1", SearchScore: 1.0, MemoryIDs: []string{"a"}},
	}

	// Signal 1.0 * weight 0.9 would exceed the cap.
	out := Fuse(semantic, scenes, FuseOptions{BoostWeight: 0.9, MaxBoost: 0.35})
	if !approxEq(out[0].IntersectionBoost, 0.35) {
		t.Errorf("Boost = %g, want cap 0.35", out[0].IntersectionBoost)
	}
	if !approxEq(out[0].CompositeScore, 0.5*1.35) {
		t.Errorf("Composite = %g, want %g", out[0].CompositeScore, 0.5*1.35)
	}
}

func TestFuseNoOverlapKeepsBase(t *testing.T) {
	semantic := []store.Candidate{
		{ID: "a", Score: 0.7},
		{ID: "b", Score: 0.4},
	}
	scenes := []store.Scene{
		{ID: "s1", SearchScore: 0.9, MemoryIDs: []string{"other"}},
	}

	out := Fuse(semantic, scenes, DefaultFuseOptions())
	for _, r := range out {
		if r.EpisodicMatch {
			t.Errorf("%s marked as match with no overlap", r.ID)
		}
		if r.IntersectionBoost != 0 {
			t.Errorf("%s boost = %g, want 0", r.ID, r.IntersectionBoost)
		}
		if !approxEq(r.CompositeScore, r.BaseCompositeScore) {
			t.Errorf("%s composite = %g, want base %g", r.ID, r.CompositeScore, r.BaseCompositeScore)
		}
	}
}

func TestFuseTieBreakPreservesSemanticOrder(t *testing.T) {
	semantic := []store.Candidate{
		{ID: "first", Score: 0.5},
		{ID: "second", Score: 0.5},
	}

	out := Fuse(semantic, nil, DefaultFuseOptions())
	if out[0].ID != "first" || out[1].ID != "second" {
		t.Errorf("Tie order = [%s %s], want [first second]", out[0].ID, out[1].ID)
	}
}

func TestFuseUsesCompositeScoreWhenPresent(t *testing.T) {
	composite := 0.8
	semantic := []store.Candidate{
		{ID: "a", Score: 0.2, CompositeScore: &composite},
		{ID: "b", Score: 0.5},
	}

	out := Fuse(semantic, nil, DefaultFuseOptions())
	if out[0].ID != "a" {
		t.Errorf("First result = %s, want a (composite 0.8 beats 0.5)", out[0].ID)
	}
	if !approxEq(out[0].BaseCompositeScore, 0.8) {
		t.Errorf("Base = %g, want 0.8", out[0].BaseCompositeScore)
	}
}

func TestFuseCoercesNonFiniteScores(t *testing.T) {
	semantic := []store.Candidate{
		{ID: "nan", Score: math.NaN()},
		{ID: "inf", Score: math.Inf(1)},
		{ID: "ok", Score: 0.3},
	}

	out := Fuse(semantic, nil, DefaultFuseOptions())
	if out[0].ID != "ok" {
		t.Errorf("First result = %s, want ok", out[0].ID)
	}
	for _, r := range out[1:] {
		if r.CompositeScore != 0 {
			t.Errorf("%s composite = %g, want 0", r.ID, r.CompositeScore)
		}
	}
}

func TestBuildEpisodicSignal(t *testing.T) {
	scenes := []store.Scene{
		// Rank 0 but no usable memory ids: contributes nothing yet still
		// occupies its rank position.
		{ID: "empty", SearchScore: 0.9, MemoryIDs: []string{"", "  "}},
		// Rank 1, score clamped up to the 0.15 floor.
		{ID: "low", SearchScore: 0.01, MemoryIDs: []string{"x"}},
		// Rank 2, score clamped down to 1.0.
		{ID: "high", SearchScore: 5.0, MemoryIDs: []string{"x", "y"}},
	}

	signal, count := buildEpisodicSignal(scenes)

	// x: (1/2)*0.15 + (1/3)*1.0
	wantX := 0.5*0.15 + 1.0/3.0
	if !approxEq(signal["x"], wantX) {
		t.Errorf("signal[x] = %g, want %g", signal["x"], wantX)
	}
	if count["x"] != 2 {
		t.Errorf("count[x] = %d, want 2", count["x"])
	}

	wantY := 1.0 / 3.0
	if !approxEq(signal["y"], wantY) {
		t.Errorf("signal[y] = %g, want %g", signal["y"], wantY)
	}
	if _, ok := signal[""]; ok {
		t.Error("Blank memory id accumulated signal")
	}
}

func TestBuildEpisodicSignalCapped(t *testing.T) {
	// Many top-ranked scenes would push the raw sum past 1.0.
	var scenes []store.Scene
	for i := 0; i < 5; i++ {
		scenes = append(scenes, store.Scene{SearchScore: 1.0, MemoryIDs: []string{"x"}})
	}

	signal, _ := buildEpisodicSignal(scenes)
	if signal["x"] != 1.0 {
		t.Errorf("signal[x] = %g, want capped 1.0", signal["x"])
	}
}

func TestFuseEmptyInputs(t *testing.T) {
	if out := Fuse(nil, nil, DefaultFuseOptions()); len(out) != 0 {
		t.Errorf("Fuse(nil, nil) returned %d results, want 0", len(out))
	}
}
