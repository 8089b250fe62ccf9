package watch

import (
	"fmt"
	"strings"
)

// TokenCounter counts tokens in rendered output.
type TokenCounter interface {
	CountTokens(text string) int
}

// Shaper holds tool output to a token budget. Entries arrive in ascending
// sequence order and are cut as a prefix, so the same input always yields
// the same output.
type Shaper struct {
	counter TokenCounter
	budget  int
}

// NewShaper creates a shaper. A budget <= 0 disables truncation.
func NewShaper(counter TokenCounter, budget int) *Shaper {
	return &Shaper{counter: counter, budget: budget}
}

// Shape renders header followed by the longest prefix of entries that fits
// the budget, and returns how many entries were dropped. The header is always
// kept. A nil Shaper keeps everything.
func (s *Shaper) Shape(header string, entries []string) (string, int) {
	if s == nil || s.budget <= 0 || s.counter == nil {
		return join(header, entries), 0
	}

	used := s.counter.CountTokens(header)
	kept := 0
	for _, e := range entries {
		// +1 for the newline joining it to the previous line.
		cost := s.counter.CountTokens(e) + 1
		if used+cost > s.budget {
			break
		}
		used += cost
		kept++
	}

	dropped := len(entries) - kept
	out := join(header, entries[:kept])
	if dropped > 0 {
		out += fmt.Sprintf("\n... %d more entr%s truncated to fit the output budget", dropped, plural(dropped, "y", "ies"))
	}
	return out, dropped
}

func join(header string, entries []string) string {
	if len(entries) == 0 {
		return header
	}
	return header + "\n" + strings.Join(entries, "\n")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
