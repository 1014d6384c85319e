package store

import (
	"math"
	"testing"
)

func TestAddSceneDefaults(t *testing.T) {
	s := newTestStore(t)

	id, err := s.AddScene(Scene{UserID: "u1", Title: "planning session"})
	if err != nil {
		t.Fatalf("AddScene failed: %v", err)
	}
	if id == "" {
		t.Fatal("AddScene returned empty id")
	}

	scenes, err := s.SearchScenes("u1", "planning", 5)
	if err != nil {
		t.Fatalf("SearchScenes failed: %v", err)
	}
	if len(scenes) != 1 {
		t.Fatalf("Got %d scenes, want 1", len(scenes))
	}
	got := scenes[0]
	if got.ID != id {
		t.Errorf("ID = %s, want %s", got.ID, id)
	}
	if got.Namespace != "default" {
		t.Errorf("Namespace = %q, want %q", got.Namespace, "default")
	}
	if got.StartTime == "" {
		t.Error("StartTime not defaulted")
	}
	if got.EndTime != got.StartTime {
		t.Errorf("EndTime = %q, want StartTime %q", got.EndTime, got.StartTime)
	}
}

func TestAddScenePreservesID(t *testing.T) {
	s := newTestStore(t)

	id, err := s.AddScene(Scene{ID: "scene-1", UserID: "u1"})
	if err != nil {
		t.Fatalf("AddScene failed: %v", err)
	}
	if id != "scene-1" {
		t.Errorf("Returned id = %s, want scene-1", id)
	}
}

func TestSearchScenesScoring(t *testing.T) {
	s := newTestStore(t)

	scenes := []Scene{
		{
			ID: "s-both", UserID: "u1",
			Title: "kitchen remodel", Topic: "remodel budget",
			StartTime: "2026-08-01T10:00:00Z",
			MemoryIDs: []string{"m1", "m2"},
		},
		{
			ID: "s-one", UserID: "u1",
			Title:     "remodel kickoff",
			StartTime: "2026-08-02T10:00:00Z",
		},
		{
			ID: "s-none", UserID: "u1",
			Title:     "vacation photos",
			StartTime: "2026-08-03T10:00:00Z",
		},
	}
	for _, scene := range scenes {
		if _, err := s.AddScene(scene); err != nil {
			t.Fatalf("AddScene(%s) failed: %v", scene.ID, err)
		}
	}

	got, err := s.SearchScenes("u1", "remodel budget", 3)
	if err != nil {
		t.Fatalf("SearchScenes failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Got %d scenes, want 3", len(got))
	}

	// Two term hits score 0.10, one hit 0.05, zero hits 0.0.
	if got[0].ID != "s-both" {
		t.Errorf("First scene = %s, want s-both", got[0].ID)
	}
	if math.Abs(got[0].SearchScore-0.10) > 1e-9 {
		t.Errorf("SearchScore = %g, want 0.10", got[0].SearchScore)
	}
	if got[1].ID != "s-one" {
		t.Errorf("Second scene = %s, want s-one", got[1].ID)
	}
	if math.Abs(got[1].SearchScore-0.05) > 1e-9 {
		t.Errorf("SearchScore = %g, want 0.05", got[1].SearchScore)
	}
	if got[2].SearchScore != 0.0 {
		t.Errorf("Third scene score = %g, want 0", got[2].SearchScore)
	}

	// Memory ids survive the JSON round trip.
	if len(got[0].MemoryIDs) != 2 || got[0].MemoryIDs[0] != "m1" {
		t.Errorf("MemoryIDs = %v, want [m1 m2]", got[0].MemoryIDs)
	}
}

func TestSearchScenesTieBreaksOnRecency(t *testing.T) {
	s := newTestStore(t)

	older := Scene{ID: "older", UserID: "u1", Title: "sync", StartTime: "2026-08-01T10:00:00Z"}
	newer := Scene{ID: "newer", UserID: "u1", Title: "sync", StartTime: "2026-08-05T10:00:00Z"}
	for _, scene := range []Scene{older, newer} {
		if _, err := s.AddScene(scene); err != nil {
			t.Fatalf("AddScene failed: %v", err)
		}
	}

	got, err := s.SearchScenes("u1", "sync", 2)
	if err != nil {
		t.Fatalf("SearchScenes failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "newer" {
		t.Errorf("Order = %v, want newer first", sceneIDs(got))
	}
}

func sceneIDs(scenes []Scene) []string {
	ids := make([]string, len(scenes))
	for i, scene := range scenes {
		ids[i] = scene.ID
	}
	return ids
}
