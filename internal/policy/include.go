package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Catalog resolves abstraction fragment names to directive sequences. The
// engine only consumes the catalog; it never populates it.
type Catalog interface {
	// Resolve returns the fragment's directives, or an
	// UnresolvedInclusionError when the name is not registered.
	Resolve(name string) ([]Directive, error)
}

// MapCatalog is an in-memory catalog, used by tests and embedders that
// manage fragment sources themselves.
type MapCatalog map[string][]Directive

func (c MapCatalog) Resolve(name string) ([]Directive, error) {
	ds, ok := c[name]
	if !ok {
		return nil, &UnresolvedInclusionError{Name: name}
	}
	return ds, nil
}

// DirCatalog loads fragments from files under a root directory, so
// `#include <abstractions/base>` resolves to <root>/abstractions/base.
// Parsed fragments are cached; the cache is safe for concurrent use.
type DirCatalog struct {
	root string

	mu    sync.Mutex
	cache map[string][]Directive
}

func NewDirCatalog(root string) *DirCatalog {
	return &DirCatalog{root: root, cache: make(map[string][]Directive)}
}

func (c *DirCatalog) Resolve(name string) ([]Directive, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ds, ok := c.cache[name]; ok {
		return ds, nil
	}

	clean := filepath.Clean(name)
	if clean != name || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return nil, &UnresolvedInclusionError{Name: name}
	}
	data, err := os.ReadFile(filepath.Join(c.root, clean))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &UnresolvedInclusionError{Name: name}
		}
		return nil, fmt.Errorf("read fragment %q: %w", name, err)
	}
	ds, err := ParseFragment(string(data))
	if err != nil {
		return nil, fmt.Errorf("fragment %q: %w", name, err)
	}
	c.cache[name] = ds
	return ds, nil
}

// expandIncludes replaces every include directive with the referenced
// fragment's directives, recursively, inserting them at the point of
// reference so declaration order is preserved. It returns the expanded
// sequence and the set of fragment names that were expanded.
//
// A fragment revisited while still being expanded is a cycle; the chain
// argument carries the in-progress inclusion path for the error report.
func expandIncludes(ds []Directive, catalog Catalog, chain []string, seen map[string]bool) ([]Directive, error) {
	out := make([]Directive, 0, len(ds))
	for _, d := range ds {
		if d.Kind != DirectiveInclude {
			out = append(out, d)
			continue
		}
		name := d.Include
		for _, in := range chain {
			if in == name {
				return nil, &CyclicInclusionError{Chain: append(append([]string{}, chain...), name)}
			}
		}
		frag, err := catalog.Resolve(name)
		if err != nil {
			return nil, err
		}
		seen[name] = true
		expanded, err := expandIncludes(frag, catalog, append(chain, name), seen)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
	}
	return out, nil
}
