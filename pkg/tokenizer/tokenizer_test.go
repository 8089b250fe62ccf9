package tokenizer

import "testing"

func TestCountTokens_NilFallback(t *testing.T) {
	var tok *Tokenizer

	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"a sentence of thirty-two chars!!", 8},
	}
	for _, tt := range tests {
		if got := tok.CountTokens(tt.text); got != tt.want {
			t.Errorf("CountTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestCountTokens_Encoding(t *testing.T) {
	tok, err := New()
	if err != nil {
		t.Skipf("encoding unavailable in this environment: %v", err)
	}
	if got := tok.CountTokens("hello world"); got <= 0 {
		t.Errorf("CountTokens() = %d, want > 0", got)
	}
}
