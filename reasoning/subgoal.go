package reasoning

import "strings"

// Subgoaler decomposes a goal into ordered subgoals. Implementations must be
// deterministic: the same goal always yields the same decomposition.
type Subgoaler interface {
	Subgoals(goal string) []string
}

// SentenceSubgoaler splits a goal on sentence boundaries. A goal with no
// boundaries yields itself as the single subgoal.
type SentenceSubgoaler struct{}

// Subgoals implements Subgoaler.
func (SentenceSubgoaler) Subgoals(goal string) []string {
	parts := strings.FieldsFunc(goal, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == ';' || r == '\n'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		if g := strings.TrimSpace(goal); g != "" {
			out = append(out, g)
		}
	}
	return out
}
