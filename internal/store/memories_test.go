package store

import (
	"math"
	"testing"
)

func TestAddAndSearchMemories(t *testing.T) {
	s := newTestStore(t)

	id, err := s.AddMemory("u1", "agent-a", "prefers dark roast coffee in the morning", nil)
	if err != nil {
		t.Fatalf("AddMemory failed: %v", err)
	}
	if id == "" {
		t.Fatal("AddMemory returned empty id")
	}
	if _, err := s.AddMemory("u1", "", "allergic to peanuts", nil); err != nil {
		t.Fatalf("AddMemory failed: %v", err)
	}

	results, err := s.SearchMemories("u1", "coffee", 10)
	if err != nil {
		t.Fatalf("SearchMemories failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Got %d results, want 1", len(results))
	}
	if results[0].ID != id {
		t.Errorf("Result id = %s, want %s", results[0].ID, id)
	}
	if results[0].Score != 1.0 {
		t.Errorf("Score = %g, want 1.0", results[0].Score)
	}
}

func TestSearchMemoriesPartialOverlap(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.AddMemory("u1", "", "team standup moved to thursday", nil); err != nil {
		t.Fatalf("AddMemory failed: %v", err)
	}

	// One of two query terms matches.
	results, err := s.SearchMemories("u1", "standup friday", 10)
	if err != nil {
		t.Fatalf("SearchMemories failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Got %d results, want 1", len(results))
	}
	if math.Abs(results[0].Score-0.5) > 1e-9 {
		t.Errorf("Score = %g, want 0.5", results[0].Score)
	}
}

func TestSearchMemoriesScopedToUser(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.AddMemory("u1", "", "likes jazz", nil); err != nil {
		t.Fatalf("AddMemory failed: %v", err)
	}
	if _, err := s.AddMemory("u2", "", "likes jazz", nil); err != nil {
		t.Fatalf("AddMemory failed: %v", err)
	}

	results, err := s.SearchMemories("u1", "jazz", 10)
	if err != nil {
		t.Fatalf("SearchMemories failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("Got %d results, want 1", len(results))
	}
}

func TestSearchMemoriesLimit(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		if _, err := s.AddMemory("u1", "", "weekly report status", nil); err != nil {
			t.Fatalf("AddMemory failed: %v", err)
		}
	}

	results, err := s.SearchMemories("u1", "report", 2)
	if err != nil {
		t.Fatalf("SearchMemories failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("Got %d results, want 2", len(results))
	}
}

func TestSearchMemoriesMetadataRoundTrip(t *testing.T) {
	s := newTestStore(t)

	meta := map[string]any{"provenance": map[string]any{"source_type": "mcp"}}
	if _, err := s.AddMemory("u1", "agent-a", "quarterly budget approved", meta); err != nil {
		t.Fatalf("AddMemory failed: %v", err)
	}

	results, err := s.SearchMemories("u1", "budget", 10)
	if err != nil {
		t.Fatalf("SearchMemories failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Got %d results, want 1", len(results))
	}
	prov, ok := results[0].Metadata["provenance"].(map[string]any)
	if !ok {
		t.Fatalf("Metadata missing provenance: %#v", results[0].Metadata)
	}
	if prov["source_type"] != "mcp" {
		t.Errorf("source_type = %v, want mcp", prov["source_type"])
	}
}

func TestKeywordScore(t *testing.T) {
	tests := []struct {
		name  string
		query string
		text  string
		want  float64
	}{
		{name: "AllTerms", query: "dark roast", text: "prefers dark roast", want: 1.0},
		{name: "HalfTerms", query: "dark decaf", text: "prefers dark roast", want: 0.5},
		{name: "NoTerms", query: "tea", text: "prefers dark roast", want: 0.0},
		{name: "EmptyQuery", query: "", text: "prefers dark roast", want: 0.0},
		{name: "CaseInsensitive", query: "DARK", text: "prefers Dark roast", want: 1.0},
		{name: "DuplicateTermsCountOnce", query: "dark dark", text: "prefers dark roast", want: 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := keywordScore(queryTerms(tt.query), tt.text)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("keywordScore(%q, %q) = %g, want %g", tt.query, tt.text, got, tt.want)
			}
		})
	}
}
