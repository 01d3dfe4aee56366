package resource

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

var (
	// ErrDuplicate is returned when a resource ID is declared twice
	ErrDuplicate = errors.New("duplicate resource")

	// ErrUnknownTarget is returned when a notification names an undeclared resource
	ErrUnknownTarget = errors.New("unknown notification target")
)

// Graph holds resources in declaration order. Declaration order is
// execution order; there is no implicit sorting.
type Graph struct {
	resources []*Resource
	index     map[ID]int
}

// NewGraph creates an empty graph
func NewGraph() *Graph {
	return &Graph{index: make(map[ID]int)}
}

// Add appends r. Declaring the same ID twice is an error; builders that
// share resources check Has first.
func (g *Graph) Add(r *Resource) error {
	if r == nil || r.Spec == nil {
		return fmt.Errorf("resource has no spec")
	}
	if r.ID.Kind != r.Spec.Kind() {
		return fmt.Errorf("resource %s has a %s spec", r.ID, r.Spec.Kind())
	}
	if r.ID.Name == "" {
		return fmt.Errorf("%s resource has no name", r.ID.Kind)
	}
	if r.Action == "" {
		r.Action = r.Spec.DefaultAction()
	}
	if !Supports(r.ID.Kind, r.Action) {
		return fmt.Errorf("resource %s does not support action %s", r.ID, r.Action)
	}
	if _, exists := g.index[r.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, r.ID)
	}

	g.index[r.ID] = len(g.resources)
	g.resources = append(g.resources, r)
	return nil
}

// Has reports whether id is declared
func (g *Graph) Has(id ID) bool {
	_, ok := g.index[id]
	return ok
}

// Lookup returns the resource declared as id
func (g *Graph) Lookup(id ID) (*Resource, bool) {
	i, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return g.resources[i], true
}

// Resources returns the resources in declaration order
func (g *Graph) Resources() []*Resource {
	return append([]*Resource(nil), g.resources...)
}

// Len returns the number of declared resources
func (g *Graph) Len() int {
	return len(g.resources)
}

// Validate checks that every notification targets a declared resource with
// an action the target supports.
func (g *Graph) Validate() error {
	var result *multierror.Error
	for _, r := range g.resources {
		for _, n := range r.Notifies {
			target, ok := g.Lookup(n.Target)
			if !ok {
				result = multierror.Append(result, fmt.Errorf("%w: %s notifies %s", ErrUnknownTarget, r.ID, n.Target))
				continue
			}
			if n.Action == ActionNothing || !Supports(target.ID.Kind, n.Action) {
				result = multierror.Append(result, fmt.Errorf("%s notifies %s with unsupported action %s", r.ID, n.Target, n.Action))
			}
		}
	}
	return result.ErrorOrNil()
}
