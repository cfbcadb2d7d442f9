package scenario

import (
	"fmt"

	"converge/internal/verify"
)

// count returns how many action variants are set.
func (a ActionSpec) count() int {
	n := 0
	for _, set := range []bool{a.Kill != nil, a.Replace != "", a.Restart != "", a.SetConfig != nil, a.ScaleConfig != nil} {
		if set {
			n++
		}
	}
	return n
}

// toAction converts a into a verify.Action, rendering set_config
// values against data.
func (a ActionSpec) toAction(data templateData) (verify.Action, error) {
	if n := a.count(); n != 1 {
		return nil, fmt.Errorf("action must set exactly one of kill, replace, restart, set_config or scale_config (got %d)", n)
	}
	switch {
	case a.Kill != nil:
		if a.Kill.Pattern == "" {
			return nil, fmt.Errorf("kill pattern is required")
		}
		if err := a.Kill.Target.Validate(); err != nil {
			return nil, err
		}
		return verify.ProcessKill{Pattern: a.Kill.Pattern, Target: a.Kill.Target}, nil
	case a.Replace != "":
		return verify.PodReplace{Pod: a.Replace}, nil
	case a.Restart != "":
		return verify.PodRestart{Pod: a.Restart}, nil
	case a.SetConfig != nil:
		if a.SetConfig.Field == "" {
			return nil, fmt.Errorf("set_config field is required")
		}
		value, err := render(a.SetConfig.Value, data)
		if err != nil {
			return nil, err
		}
		return verify.ConfigFieldUpdate{Field: a.SetConfig.Field, Value: value}, nil
	default:
		if a.ScaleConfig.Field == "" {
			return nil, fmt.Errorf("scale_config field is required")
		}
		if a.ScaleConfig.Delta == 0 {
			return nil, fmt.Errorf("scale_config delta must not be zero")
		}
		return verify.ScaleConfig{Field: a.ScaleConfig.Field, Delta: a.ScaleConfig.Delta}, nil
	}
}

// criteria converts the expectation into verify.Criteria.
func (e *Expect) criteria() (verify.Criteria, error) {
	crit := verify.Criteria{Expect: map[string]verify.Expectation{}}
	if e == nil {
		return crit, nil
	}
	for group, s := range e.Groups {
		exp, err := verify.ParseExpectation(s)
		if err != nil {
			return crit, fmt.Errorf("group %q: %w", group, err)
		}
		crit.Expect[group] = exp
	}
	crit.RecoveryExpected = e.Recovery
	crit.ExpectedTaskCount = e.Tasks
	crit.Timeout = e.Timeout
	return crit, nil
}

// groups returns the groups the baseline must cover.
func (e *Expect) groups() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.Groups))
	for g := range e.Groups {
		out = append(out, g)
	}
	return out
}
