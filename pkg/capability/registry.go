package capability

import (
	"sort"

	"github.com/ausweis-dev/ausweis/pkg/api"
)

// Registry holds the immutable set of capability descriptors built from
// an API description. It is read-only after Build and safe for concurrent
// use by all sessions without locking.
type Registry struct {
	byName  map[string]*Descriptor
	ordered []*Descriptor
}

// Build constructs a registry from an API description. It fails with a
// schema error when any capability's parameter schema cannot be resolved.
// Building twice from an identical description yields descriptors equal
// by name and schema.
func Build(desc *Description) (*Registry, error) {
	if desc == nil {
		return nil, api.NewSchemaError("", "nil API description")
	}

	r := &Registry{
		byName: make(map[string]*Descriptor, len(desc.Capabilities)),
	}

	for _, c := range desc.Capabilities {
		if err := c.validate(); err != nil {
			return nil, err
		}
		if _, exists := r.byName[c.Name]; exists {
			return nil, api.NewSchemaError(c.Name, "duplicate capability name")
		}

		schemaJSON, schema, err := buildParameterSchema(c.Name, c.Parameters)
		if err != nil {
			return nil, err
		}

		d := &Descriptor{
			Name:        c.Name,
			Description: c.Description,
			SideEffect:  c.SideEffect,
			Parameters:  append([]Parameter(nil), c.Parameters...),
			HTTP:        c.HTTP,
			schemaJSON:  schemaJSON,
			schema:      schema,
		}
		r.byName[d.Name] = d
		r.ordered = append(r.ordered, d)
	}

	sort.Slice(r.ordered, func(i, j int) bool {
		return r.ordered[i].Name < r.ordered[j].Name
	})

	return r, nil
}

// BuildFromDescriptors constructs a registry from pre-built descriptors,
// e.g. capabilities discovered from an MCP server.
func BuildFromDescriptors(ds []*Descriptor) (*Registry, error) {
	r := &Registry{
		byName: make(map[string]*Descriptor, len(ds)),
	}
	for _, d := range ds {
		if _, exists := r.byName[d.Name]; exists {
			return nil, api.NewSchemaError(d.Name, "duplicate capability name")
		}
		r.byName[d.Name] = d
		r.ordered = append(r.ordered, d)
	}
	sort.Slice(r.ordered, func(i, j int) bool {
		return r.ordered[i].Name < r.ordered[j].Name
	})
	return r, nil
}

// Lookup returns the descriptor for the given capability name.
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// Descriptors returns all descriptors sorted by name. The returned slice
// is shared; callers must not modify it.
func (r *Registry) Descriptors() []*Descriptor {
	return r.ordered
}

// Len returns the number of registered capabilities.
func (r *Registry) Len() int {
	return len(r.ordered)
}
