package persona

import (
	"fmt"
	"strings"
)

// Catalog is the fixed, read-only set of personas. Lookups are by display
// name, trimmed and case-insensitive. Entries keep their load order.
type Catalog struct {
	order  []string
	byName map[string]Persona
}

// NewCatalog validates personas and indexes them. Empty catalogs and
// duplicate names are rejected.
func NewCatalog(personas []Persona) (*Catalog, error) {
	if len(personas) == 0 {
		return nil, fmt.Errorf("%w: no personas", ErrInvalidCatalog)
	}
	c := &Catalog{byName: make(map[string]Persona, len(personas))}
	for _, p := range personas {
		p.Name = strings.TrimSpace(p.Name)
		if err := p.validate(); err != nil {
			return nil, err
		}
		if p.Version <= 0 {
			p.Version = 1
		}
		key := strings.ToLower(p.Name)
		if _, dup := c.byName[key]; dup {
			return nil, fmt.Errorf("%w: duplicate persona %q", ErrInvalidCatalog, p.Name)
		}
		c.byName[key] = p
		c.order = append(c.order, key)
	}
	return c, nil
}

// Lookup resolves a display name.
func (c *Catalog) Lookup(name string) (Persona, error) {
	p, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Persona{}, fmt.Errorf("%w: %q", ErrUnknownPersona, name)
	}
	return p, nil
}

// All returns the personas in load order.
func (c *Catalog) All() []Persona {
	out := make([]Persona, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.byName[k])
	}
	return out
}

func (c *Catalog) Len() int { return len(c.order) }

// Summary lists each persona with its usage guidance, one per line, for the
// chooser prompt.
func (c *Catalog) Summary() string {
	var b strings.Builder
	for _, p := range c.All() {
		fmt.Fprintf(&b, "- %s: %s\n", p.Name, strings.TrimSpace(p.UsageGuidance))
	}
	return strings.TrimRight(b.String(), "\n")
}
