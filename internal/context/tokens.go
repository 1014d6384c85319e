// Package context builds token-bounded context packets from ranked
// retrieval results. The token heuristic is a coarse, deterministic
// approximation of GPT-style tokenization, not a real tokenizer.
package context

// EstimateTokens estimates the token cost of text as max(1, len/4).
// Empty text costs nothing. Callers must not rely on exactness.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}
