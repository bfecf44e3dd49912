package artifact

import (
	"fmt"
	"strings"
)

// DefaultApprovalScore is the score at which a review passes even when the
// reviewer did not set Approved.
const DefaultApprovalScore = 8

// Review is the reviewer's verdict on one attempt.
type Review struct {
	Approved             bool     `json:"approved"`
	Score                int      `json:"score"`
	Feedback             string   `json:"feedback,omitempty"`
	RevisionInstructions string   `json:"revision_instructions,omitempty"`
	CriticalIssues       []string `json:"critical_issues,omitempty"`
}

// Clamp forces the score into [0,10].
func (r Review) Clamp() Review {
	switch {
	case r.Score < 0:
		r.Score = 0
	case r.Score > 10:
		r.Score = 10
	}
	return r
}

// Passes reports acceptance: either the flag or the score alone is enough.
func (r Review) Passes(threshold int) bool {
	return r.Approved || r.Score >= threshold
}

// Guidance is what the next revise request should carry.
func (r Review) Guidance() string {
	if s := strings.TrimSpace(r.RevisionInstructions); s != "" {
		return s
	}
	return strings.TrimSpace(r.Feedback)
}

// Notes renders the verdict for an artifact's review notes.
func (r Review) Notes() string {
	var b strings.Builder
	fmt.Fprintf(&b, "score %d/10", r.Score)
	if r.Approved {
		b.WriteString(", approved")
	}
	if f := strings.TrimSpace(r.Feedback); f != "" {
		b.WriteString(": ")
		b.WriteString(f)
	}
	for _, issue := range r.CriticalIssues {
		b.WriteString("\n- ")
		b.WriteString(issue)
	}
	return b.String()
}
