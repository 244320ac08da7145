// Package resource names the things a robot binds at runtime (cameras, detection backends, ML
// models) and provides the hardware map that resolves those names.
package resource

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Known resource types.
const (
	TypeComponent = "component"
	TypeService   = "service"
)

// API identifies a kind of resource, e.g. component/camera.
type API struct {
	Type    string
	Subtype string
}

// APIFromComponentType returns the API of a component subtype.
func APIFromComponentType(subtype string) API {
	return API{Type: TypeComponent, Subtype: subtype}
}

// APIFromServiceType returns the API of a service subtype.
func APIFromServiceType(subtype string) API {
	return API{Type: TypeService, Subtype: subtype}
}

func (a API) String() string {
	return fmt.Sprintf("%s:%s", a.Type, a.Subtype)
}

// Validate ensures both parts of the API are set.
func (a API) Validate() error {
	if a.Type == "" {
		return errors.New("type field for resource missing or invalid")
	}
	if a.Subtype == "" {
		return errors.New("subtype field for resource missing or invalid")
	}
	return nil
}

// Name represents a known component/service of a robot.
type Name struct {
	API  API
	Name string
}

// NewName creates a new Name based on parameters passed in.
func NewName(api API, name string) Name {
	return Name{API: api, Name: name}
}

// NewFromString parses "<type>:<subtype>/<name>".
func NewFromString(resourceName string) (Name, error) {
	apiStr, name, found := strings.Cut(resourceName, "/")
	if !found || name == "" {
		return Name{}, errors.Errorf("string %q is not a valid resource name", resourceName)
	}
	rType, subtype, found := strings.Cut(apiStr, ":")
	if !found {
		return Name{}, errors.Errorf("string %q is not a valid resource name", resourceName)
	}
	n := NewName(API{Type: rType, Subtype: subtype}, name)
	return n, n.Validate()
}

// Validate ensures that important fields exist and are valid.
func (n Name) Validate() error {
	if err := n.API.Validate(); err != nil {
		return err
	}
	if n.Name == "" {
		return errors.New("name field for resource is empty")
	}
	return nil
}

// UUID returns a stable identifier derived from the full name.
func (n Name) UUID() string {
	return uuid.NewSHA1(uuid.NameSpaceX500, []byte(n.String())).String()
}

func (n Name) String() string {
	return fmt.Sprintf("%s/%s", n.API, n.Name)
}

// A Resource is a named, closeable binding.
type Resource interface {
	Name() Name
	Close(ctx context.Context) error
}

// Named is embeddable to provide the Name method of a Resource.
type Named interface {
	Name() Name
	DoNotEmbed()
}

type selfNamed struct {
	name Name
}

// AsNamed is a helper to let a Name satisfy Named by embedding.
func (n Name) AsNamed() Named {
	return selfNamed{n}
}

func (s selfNamed) Name() Name {
	return s.name
}

func (s selfNamed) DoNotEmbed() {}

// TriviallyCloseable is to be embedded by any resource that does not care about handling Closes.
type TriviallyCloseable struct{}

// Close always returns no error.
func (TriviallyCloseable) Close(ctx context.Context) error {
	return nil
}
