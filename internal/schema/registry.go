package schema

import "fmt"

// Registry indexes definitions by tag and by name.
type Registry struct {
	defs      []*Definition
	byTag     map[Tag]*Definition
	tagByName map[string]Tag
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byTag:     make(map[Tag]*Definition),
		tagByName: make(map[string]Tag),
	}
}

// Add validates and registers a definition.
func (r *Registry) Add(def Definition) error {
	if def.Tag == TagUnknown {
		return fmt.Errorf("definition tag is empty: %s", def.Name)
	}
	if def.Name == "" {
		return fmt.Errorf("definition name is empty: %d", def.Tag)
	}
	if _, ok := r.byTag[def.Tag]; ok {
		return fmt.Errorf("definition already exists: %d", def.Tag)
	}
	if _, ok := r.tagByName[def.Name]; ok {
		return fmt.Errorf("definition already exists: %s", def.Name)
	}
	if def.Layout == LayoutMarker && len(def.Fields) != 0 {
		return fmt.Errorf("marker %s declares fields", def.Name)
	}
	for _, f := range def.Fields {
		switch {
		case def.Layout == LayoutFixed && f.Kind == KindString:
			return fmt.Errorf("fixed layout %s has variable field %s", def.Name, f.Name)
		case f.Kind == KindBytes && f.Len <= 0:
			return fmt.Errorf("bytes field %s.%s has no length", def.Name, f.Name)
		}
	}
	for _, pk := range def.PrimaryKeys {
		if _, ok := def.Field(pk); !ok {
			return fmt.Errorf("primary key %s.%s is not a field", def.Name, pk)
		}
	}
	d := def
	r.defs = append(r.defs, &d)
	r.byTag[d.Tag] = &d
	r.tagByName[d.Name] = d.Tag
	return nil
}

// Lookup returns the definition of a tag.
func (r *Registry) Lookup(tag Tag) (*Definition, bool) {
	d, ok := r.byTag[tag]
	return d, ok
}

// TagByName returns the tag registered under name.
func (r *Registry) TagByName(name string) (Tag, bool) {
	tag, ok := r.tagByName[name]
	return tag, ok
}

// Definitions returns every definition in registration order.
func (r *Registry) Definitions() []*Definition {
	return r.defs
}

// Count returns the number of definitions.
func (r *Registry) Count() int {
	return len(r.defs)
}

var defaultRegistry = mustRegistry(definitions)

func mustRegistry(defs []Definition) *Registry {
	r := NewRegistry()
	for _, d := range defs {
		if err := r.Add(d); err != nil {
			panic(err)
		}
	}
	return r
}

// Default returns the registry built from the record table.
func Default() *Registry {
	return defaultRegistry
}

// Lookup returns the definition of a tag from the default registry.
func Lookup(tag Tag) (*Definition, bool) {
	return defaultRegistry.Lookup(tag)
}

// IsMarker reports whether tag is a zero-payload marker.
func IsMarker(tag Tag) bool {
	d, ok := defaultRegistry.Lookup(tag)
	return ok && d.Layout == LayoutMarker
}

// IsState reports whether tag is mirrored by cache-shift.
func IsState(tag Tag) bool {
	d, ok := defaultRegistry.Lookup(tag)
	return ok && d.State
}

// IsProfile reports whether tag is persisted to the profile store.
func IsProfile(tag Tag) bool {
	d, ok := defaultRegistry.Lookup(tag)
	return ok && d.Profile
}
