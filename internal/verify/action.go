package verify

import (
	"fmt"
	"strconv"
)

// Action is one change applied to the service. The concrete types are
// ProcessKill, PodReplace, PodRestart, ConfigFieldUpdate and ScaleConfig.
type Action interface {
	fmt.Stringer
	// Kind is a short stable name used in logs and reports.
	Kind() string
	isAction()
}

// Target selects where a ProcessKill lands. Exactly one field must be set.
type Target struct {
	// Pod selects the instances of one pod, e.g. "journal-0".
	Pod string `json:"pod,omitempty" yaml:"pod,omitempty"`
	// Group selects every instance whose name starts with the prefix,
	// e.g. "journal" for all journal nodes.
	Group string `json:"group,omitempty" yaml:"group,omitempty"`
	// Host names a host directly.
	Host string `json:"host,omitempty" yaml:"host,omitempty"`
	// Scheduler selects the hosts running the service scheduler.
	Scheduler bool `json:"scheduler,omitempty" yaml:"scheduler,omitempty"`
}

// Validate checks that exactly one selector is set.
func (t Target) Validate() error {
	n := 0
	for _, set := range []bool{t.Pod != "", t.Group != "", t.Host != "", t.Scheduler} {
		if set {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("kill target must set exactly one of pod, group, host or scheduler (got %d)", n)
	}
	return nil
}

func (t Target) String() string {
	switch {
	case t.Pod != "":
		return "pod " + t.Pod
	case t.Group != "":
		return "group " + t.Group
	case t.Host != "":
		return "host " + t.Host
	case t.Scheduler:
		return "scheduler"
	default:
		return "<none>"
	}
}

// ProcessKill kills processes matching Pattern wherever Target resolves.
type ProcessKill struct {
	Pattern string
	Target  Target
}

func (ProcessKill) Kind() string { return "kill" }
func (ProcessKill) isAction()    {}
func (a ProcessKill) String() string {
	return fmt.Sprintf("kill %q on %s", a.Pattern, a.Target)
}

// PodReplace permanently replaces a pod (new host, fresh volumes).
type PodReplace struct {
	Pod string
}

func (PodReplace) Kind() string { return "replace" }
func (PodReplace) isAction()    {}
func (a PodReplace) String() string {
	return "pod replace " + a.Pod
}

// PodRestart restarts a pod in place.
type PodRestart struct {
	Pod string
}

func (PodRestart) Kind() string { return "restart" }
func (PodRestart) isAction()    {}
func (a PodRestart) String() string {
	return "pod restart " + a.Pod
}

// ConfigFieldUpdate sets one app-config field.
type ConfigFieldUpdate struct {
	Field string
	Value string
}

func (ConfigFieldUpdate) Kind() string { return "set_config" }
func (ConfigFieldUpdate) isAction()    {}
func (a ConfigFieldUpdate) String() string {
	return fmt.Sprintf("set %s=%s", a.Field, a.Value)
}

// ScaleConfig adds Delta to a numeric app-config field, e.g. a node count or
// a CPU share.
type ScaleConfig struct {
	Field string
	Delta float64
}

func (ScaleConfig) Kind() string { return "scale_config" }
func (ScaleConfig) isAction()    {}
func (a ScaleConfig) String() string {
	sign := "+"
	if a.Delta < 0 {
		sign = ""
	}
	return fmt.Sprintf("scale %s %s%s", a.Field, sign, strconv.FormatFloat(a.Delta, 'f', -1, 64))
}
