package context

import (
	"strings"
	"testing"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "Empty", text: "", want: 0},
		{name: "Tiny", text: "ab", want: 1},
		{name: "ExactlyFour", text: "abcd", want: 1},
		{name: "Eight", text: "abcdefgh", want: 2},
		{name: "Long", text: strings.Repeat("a", 400), want: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateTokens(tt.text); got != tt.want {
				t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}
