package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"converge/internal/cluster"
	"converge/pkg/logging"
)

// Snapshot maps process groups to the instance identifiers observed at one
// point in time. It is immutable: accessors return copies.
type Snapshot struct {
	takenAt time.Time
	groups  map[string][]string
}

// NewSnapshot builds a snapshot from raw identifier lists.
func NewSnapshot(takenAt time.Time, groups map[string][]string) Snapshot {
	s := Snapshot{takenAt: takenAt, groups: make(map[string][]string, len(groups))}
	for g, ids := range groups {
		s.groups[g] = sortedCopy(ids)
	}
	return s
}

func sortedCopy(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

// TakenAt returns when the snapshot was captured.
func (s Snapshot) TakenAt() time.Time {
	return s.takenAt
}

// Groups returns the group names in sorted order.
func (s Snapshot) Groups() []string {
	names := make([]string, 0, len(s.groups))
	for g := range s.groups {
		names = append(names, g)
	}
	slices.Sort(names)
	return names
}

// Has reports whether the snapshot covers group.
func (s Snapshot) Has(group string) bool {
	_, ok := s.groups[group]
	return ok
}

// IDs returns the sorted identifiers for group.
func (s Snapshot) IDs(group string) []string {
	return slices.Clone(s.groups[group])
}

// Equal reports whether both snapshots hold identical identifier sets for
// identical groups. Capture time is ignored.
func (s Snapshot) Equal(o Snapshot) bool {
	if len(s.groups) != len(o.groups) {
		return false
	}
	for g, ids := range s.groups {
		other, ok := o.groups[g]
		if !ok || !slices.Equal(ids, other) {
			return false
		}
	}
	return true
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		TakenAt time.Time           `json:"taken_at"`
		Groups  map[string][]string `json:"groups"`
	}{s.takenAt, s.groups})
}

// GroupDiff is the identifier delta of one group between two snapshots.
type GroupDiff struct {
	Group   string   `json:"group"`
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
}

// Classification is Updated when the symmetric difference is non-empty.
func (d GroupDiff) Classification() Classification {
	if len(d.Added) > 0 || len(d.Removed) > 0 {
		return Updated
	}
	return Unchanged
}

// Diff compares group between before and after.
func Diff(group string, before, after Snapshot) GroupDiff {
	b, a := before.groups[group], after.groups[group]
	d := GroupDiff{Group: group}
	for _, id := range a {
		if _, found := slices.BinarySearch(b, id); !found {
			d.Added = append(d.Added, id)
		}
	}
	for _, id := range b {
		if _, found := slices.BinarySearch(a, id); !found {
			d.Removed = append(d.Removed, id)
		}
	}
	return d
}

// Capture records the current instance identifiers of every named group.
// A group with no instances yields a *LookupError.
func (v *Verifier) Capture(ctx context.Context, groups ...string) (Snapshot, error) {
	snap, err := v.collect(ctx, true, groups)
	if err != nil {
		return Snapshot{}, err
	}
	logging.Debug("Verifier", "captured baseline for %d groups of %s", len(groups), v.opts.Service)
	return snap, nil
}

// collect lists every group concurrently. With requireAll set an empty group
// is a *LookupError; otherwise it is recorded as empty.
func (v *Verifier) collect(ctx context.Context, requireAll bool, groups []string) (Snapshot, error) {
	results := make([][]string, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.opts.CaptureConcurrency)
	for i, group := range groups {
		g.Go(func() error {
			ids, err := v.groupIDs(gctx, group)
			if err != nil {
				return err
			}
			if requireAll && len(ids) == 0 {
				return &LookupError{Service: v.opts.Service, Group: group}
			}
			results[i] = ids
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}

	raw := make(map[string][]string, len(groups))
	for i, group := range groups {
		raw[group] = results[i]
	}
	return NewSnapshot(v.now(), raw), nil
}

func (v *Verifier) groupIDs(ctx context.Context, group string) ([]string, error) {
	tasks, err := v.orch.ListTaskInstances(ctx, v.opts.Service, group)
	if err != nil {
		return nil, fmt.Errorf("failed to list task instances for group %q: %w", group, err)
	}
	return taskIDs(tasks), nil
}

func taskIDs(tasks []cluster.TaskInstance) []string {
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	return ids
}
