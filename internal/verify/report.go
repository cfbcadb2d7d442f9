package verify

import (
	"fmt"
	"strings"
	"time"

	"converge/internal/cluster"
)

// GroupResult is the verdict for one watched group.
type GroupResult struct {
	Group     string         `json:"group"`
	Expected  Expectation    `json:"expected"`
	Actual    Classification `json:"actual"`
	Before    int            `json:"before"`
	After     int            `json:"after"`
	Added     []string       `json:"added,omitempty"`
	Removed   []string       `json:"removed,omitempty"`
	Satisfied bool           `json:"satisfied"`
}

func (r GroupResult) diff() GroupDiff {
	return GroupDiff{Group: r.Group, Added: r.Added, Removed: r.Removed}
}

func (r GroupResult) mismatch() *ConvergenceMismatch {
	return &ConvergenceMismatch{
		Group:    r.Group,
		Expected: r.Expected,
		Actual:   r.Actual,
		Added:    r.Added,
		Removed:  r.Removed,
	}
}

// Report is the structured outcome of one AwaitConvergence call.
type Report struct {
	Service           string             `json:"service"`
	Groups            []GroupResult      `json:"groups"`
	Deploy            cluster.PlanStatus `json:"deploy,omitempty"`
	Recovery          cluster.PlanStatus `json:"recovery,omitempty"`
	RecoveryKickedOff bool               `json:"recovery_kicked_off"`
	TaskCount         int                `json:"task_count"`
	ExpectedTaskCount int                `json:"expected_task_count"`
	Elapsed           time.Duration      `json:"elapsed"`
	Polls             int                `json:"polls"`
	// Final is the last snapshot taken of the watched groups. After a
	// successful wait it is a valid baseline for the next change.
	Final Snapshot `json:"final"`
}

// Result returns the verdict for group.
func (r *Report) Result(group string) (GroupResult, bool) {
	for _, g := range r.Groups {
		if g.Group == group {
			return g, true
		}
	}
	return GroupResult{}, false
}

// Classifications returns the observed classification per group.
func (r *Report) Classifications() map[string]Classification {
	out := make(map[string]Classification, len(r.Groups))
	for _, g := range r.Groups {
		out[g.Group] = g.Actual
	}
	return out
}

// Summary renders a one-line description suitable for logs.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: deploy=%s recovery=%s", r.Service, orDash(string(r.Deploy)), orDash(string(r.Recovery)))
	if r.ExpectedTaskCount > 0 {
		fmt.Fprintf(&b, " tasks=%d/%d", r.TaskCount, r.ExpectedTaskCount)
	}
	for _, g := range r.Groups {
		mark := "ok"
		if !g.Satisfied {
			mark = "FAIL"
		}
		fmt.Fprintf(&b, " %s=%s(%s)", g.Group, g.Actual, mark)
	}
	fmt.Fprintf(&b, " in %v after %d polls", r.Elapsed.Round(time.Millisecond), r.Polls)
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
