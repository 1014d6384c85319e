package context

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Ashish-dwi99/Engram-sub002/internal/store"
)

// text of a known token cost: n tokens = 4n bytes.
func textOfTokens(n int) string {
	return strings.Repeat("a", n*4)
}

func TestPackRespectsTokenBudget(t *testing.T) {
	items := []Item{
		{ID: "m1", Text: textOfTokens(4), Score: 0.9},
		{ID: "m2", Text: textOfTokens(4), Score: 0.8},
		{ID: "m3", Text: textOfTokens(4), Score: 0.7},
	}

	// Query costs 1 token; two 4-token items fit in 10, the third does not.
	packet := Pack("q", items, nil, PackOptions{MaxTokens: 10, MaxItems: 8})

	if len(packet.Snippets) != 2 {
		t.Fatalf("Got %d snippets, want 2", len(packet.Snippets))
	}
	if packet.Snippets[0].MemoryID != "m1" || packet.Snippets[1].MemoryID != "m2" {
		t.Errorf("Snippet order = [%s %s], want [m1 m2]",
			packet.Snippets[0].MemoryID, packet.Snippets[1].MemoryID)
	}
	if packet.TokenUsage.EstimatedTokens != 9 {
		t.Errorf("EstimatedTokens = %d, want 9", packet.TokenUsage.EstimatedTokens)
	}
	if packet.TokenUsage.Budget != 10 {
		t.Errorf("Budget = %d, want 10", packet.TokenUsage.Budget)
	}
}

func TestPackFirstSnippetAlwaysAdmitted(t *testing.T) {
	items := []Item{
		{ID: "big", Text: textOfTokens(50), Score: 0.9},
		{ID: "small", Text: textOfTokens(1), Score: 0.8},
	}

	packet := Pack("q", items, nil, PackOptions{MaxTokens: 5, MaxItems: 8})

	// One oversized top candidate must not starve the response.
	if len(packet.Snippets) != 1 || packet.Snippets[0].MemoryID != "big" {
		t.Fatalf("Snippets = %v, want just big", snippetIDs(packet))
	}
	if packet.TokenUsage.EstimatedTokens != 51 {
		t.Errorf("EstimatedTokens = %d, want 51", packet.TokenUsage.EstimatedTokens)
	}
}

func TestPackItemCap(t *testing.T) {
	var items []Item
	for i := 0; i < 10; i++ {
		items = append(items, Item{ID: "m", Text: textOfTokens(1), Score: 0.5})
	}

	packet := Pack("q", items, nil, PackOptions{MaxTokens: 800, MaxItems: 3})
	if len(packet.Snippets) != 3 {
		t.Errorf("Got %d snippets, want 3", len(packet.Snippets))
	}
	if packet.Masking.TotalCandidates != 10 {
		t.Errorf("TotalCandidates = %d, want 10", packet.Masking.TotalCandidates)
	}
}

func TestPackCountsMaskedScannedNotJustIncluded(t *testing.T) {
	items := []Item{
		{ID: "m1", Text: textOfTokens(4), Masked: true, Score: 0.9},
		{ID: "m2", Text: textOfTokens(4), Score: 0.8},
		// Scanned, counted, but over budget and never included.
		{ID: "m3", Text: textOfTokens(4), Masked: true, Score: 0.7},
	}

	packet := Pack("q", items, nil, PackOptions{MaxTokens: 10, MaxItems: 8})
	if len(packet.Snippets) != 2 {
		t.Fatalf("Got %d snippets, want 2", len(packet.Snippets))
	}
	if packet.Masking.MaskedCount != 2 {
		t.Errorf("MaskedCount = %d, want 2", packet.Masking.MaskedCount)
	}
	if !packet.Snippets[0].Masked {
		t.Error("Included masked snippet lost its flag")
	}
}

func TestPackEmptyResults(t *testing.T) {
	packet := Pack("what happened", nil, nil, PackOptions{})

	if len(packet.Snippets) != 0 {
		t.Errorf("Got %d snippets, want 0", len(packet.Snippets))
	}
	// Only the query's own cost is accounted.
	if packet.TokenUsage.EstimatedTokens != EstimateTokens("what happened") {
		t.Errorf("EstimatedTokens = %d, want %d",
			packet.TokenUsage.EstimatedTokens, EstimateTokens("what happened"))
	}
	if packet.TokenUsage.Budget != 800 {
		t.Errorf("Default budget = %d, want 800", packet.TokenUsage.Budget)
	}
	if packet.Masking.TotalCandidates != 0 {
		t.Errorf("TotalCandidates = %d, want 0", packet.Masking.TotalCandidates)
	}
}

func TestPackScanWindow(t *testing.T) {
	// 3*MaxItems bounds the scan: with MaxItems 2 only the first 6
	// candidates are considered at all.
	var items []Item
	for i := 0; i < 20; i++ {
		items = append(items, Item{ID: "m", Text: textOfTokens(200), Masked: true, Score: 0.5})
	}

	packet := Pack("q", items, nil, PackOptions{MaxTokens: 100, MaxItems: 2})
	if packet.Masking.MaskedCount > 6 {
		t.Errorf("MaskedCount = %d, scan window of 6 exceeded", packet.Masking.MaskedCount)
	}
	if packet.Masking.TotalCandidates != 20 {
		t.Errorf("TotalCandidates = %d, want 20", packet.Masking.TotalCandidates)
	}
}

func TestPackCitations(t *testing.T) {
	scenes := []store.Scene{
		{ID: "s2"},
		{ID: "s1"},
		{ID: "s2"}, // duplicate
		{ID: ""},   // ignored
	}
	items := []Item{{ID: "m1", Text: textOfTokens(1), Score: 0.5}}

	packet := Pack("q", items, scenes, PackOptions{})
	got := packet.Snippets[0].Citations.SceneIDs
	if diff := cmp.Diff([]string{"s1", "s2"}, got); diff != "" {
		t.Errorf("SceneIDs mismatch (-want +got):\n%s", diff)
	}
}

func TestPackDeterministic(t *testing.T) {
	items := []Item{
		{ID: "m1", Text: "met the contractor on site", Score: 0.9},
		{ID: "m2", Text: "tile samples arrived", Masked: true, Score: 0.6},
	}
	scenes := []store.Scene{{ID: "s9"}, {ID: "s3"}}

	first := Pack("remodel", items, scenes, PackOptions{})
	second := Pack("remodel", items, scenes, PackOptions{})
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Identical inputs produced different packets (-first +second):\n%s", diff)
	}
}

func snippetIDs(p Packet) []string {
	ids := make([]string, len(p.Snippets))
	for i, s := range p.Snippets {
		ids[i] = s.MemoryID
	}
	return ids
}
