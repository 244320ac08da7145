package resource

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// A Provider resolves names to resources. The hardware map is the usual Provider; tests inject
// their own.
type Provider interface {
	Resource(name Name) (Resource, error)
}

// FromProvider resolves name from the provider and asserts the result implements T.
func FromProvider[T Resource](provider Provider, name Name) (T, error) {
	var zero T
	if provider == nil {
		return zero, NewNotFoundError(name)
	}
	res, err := provider.Resource(name)
	if err != nil {
		return zero, err
	}
	typed, ok := res.(T)
	if !ok {
		return zero, newTypeError[T](name, res)
	}
	return typed, nil
}

// HardwareMap is the robot's table of configured bindings. It is safe for concurrent use.
type HardwareMap struct {
	mu        sync.RWMutex
	resources map[Name]Resource
}

// NewHardwareMap returns an empty hardware map.
func NewHardwareMap() *HardwareMap {
	return &HardwareMap{resources: map[Name]Resource{}}
}

// Resource returns the resource bound under name, if it exists. A nil map has no bindings.
func (hm *HardwareMap) Resource(name Name) (Resource, error) {
	if hm == nil {
		return nil, NewNotFoundError(name)
	}
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	if res, ok := hm.resources[name]; ok {
		return res, nil
	}
	return nil, NewNotFoundError(name)
}

// Add binds res under its own name. Adding a name twice is an error; use ReplaceOne instead.
func (hm *HardwareMap) Add(res Resource) error {
	if res == nil {
		return errors.New("cannot add a nil resource")
	}
	hm.mu.Lock()
	defer hm.mu.Unlock()
	return hm.doAdd(res.Name(), res)
}

// Remove unbinds name without closing it.
func (hm *HardwareMap) Remove(name Name) error {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	return hm.doRemove(name)
}

// ReplaceOne swaps the binding for res's name, returning the previous resource so the caller can
// close it.
func (hm *HardwareMap) ReplaceOne(res Resource) (Resource, error) {
	if res == nil {
		return nil, errors.New("cannot add a nil resource")
	}
	hm.mu.Lock()
	defer hm.mu.Unlock()
	prev, ok := hm.resources[res.Name()]
	if !ok {
		return nil, NewNotFoundError(res.Name())
	}
	hm.resources[res.Name()] = res
	return prev, nil
}

// Names returns the bound names that match every given matcher, sorted.
func (hm *HardwareMap) Names(matchers ...Matcher) []Name {
	if hm == nil {
		return nil
	}
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	names := make([]Name, 0, len(hm.resources))
outer:
	for name := range hm.resources {
		for _, m := range matchers {
			if !m.IsMatch(name) {
				continue outer
			}
		}
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return names[i].String() < names[j].String()
	})
	return names
}

// Close closes and unbinds every resource.
func (hm *HardwareMap) Close(ctx context.Context) error {
	hm.mu.Lock()
	resources := hm.resources
	hm.resources = map[Name]Resource{}
	hm.mu.Unlock()

	var errs error
	for name, res := range resources {
		if err := res.Close(ctx); err != nil {
			errs = multierr.Combine(errs, errors.Wrapf(err, "closing %s", name))
		}
	}
	return errs
}

func (hm *HardwareMap) doAdd(name Name, res Resource) error {
	if err := name.Validate(); err != nil {
		return errors.Wrapf(err, "invalid name used for resource: %s", name)
	}
	if _, exists := hm.resources[name]; exists {
		return errors.Errorf("resource %s already exists", name)
	}
	hm.resources[name] = res
	return nil
}

func (hm *HardwareMap) doRemove(name Name) error {
	if _, ok := hm.resources[name]; !ok {
		return errors.Errorf("resource %s not found", name)
	}
	delete(hm.resources, name)
	return nil
}
