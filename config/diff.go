package config

import (
	"reflect"
)

// A Diff is the difference between two configs, left and right, where left is usually old and
// right is new.
type Diff struct {
	Left, Right *Config
	Added       []Pipeline
	Removed     []Pipeline
	// Modified holds the right side of pipelines whose own settings changed.
	Modified []Pipeline
	// Rebound holds pipelines whose settings are unchanged but whose camera's settings changed.
	Rebound        []Pipeline
	DashboardEqual bool
}

// PipelinesEqual returns whether no pipeline has to be rebuilt.
func (d *Diff) PipelinesEqual() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0 && len(d.Rebound) == 0
}

// DiffConfigs returns the difference between the two given configs from left to right. A pipeline
// counts as modified when its own settings changed, and as rebound when only the settings of the
// camera it opens changed.
func DiffConfigs(left, right Config) *Diff {
	diff := &Diff{
		Left:           &left,
		Right:          &right,
		DashboardEqual: left.Dashboard == right.Dashboard,
	}

	leftPipelines := make(map[string]Pipeline, len(left.Pipelines))
	for _, p := range left.Pipelines {
		leftPipelines[p.Name] = p
	}
	for _, p := range right.Pipelines {
		old, ok := leftPipelines[p.Name]
		delete(leftPipelines, p.Name)
		if !ok {
			diff.Added = append(diff.Added, p)
			continue
		}
		switch {
		case !reflect.DeepEqual(old, p):
			diff.Modified = append(diff.Modified, p)
		case !reflect.DeepEqual(left.FindCamera(old.CameraName()), right.FindCamera(p.CameraName())):
			diff.Rebound = append(diff.Rebound, p)
		}
	}
	for _, p := range left.Pipelines {
		if _, ok := leftPipelines[p.Name]; ok {
			diff.Removed = append(diff.Removed, p)
		}
	}
	return diff
}
