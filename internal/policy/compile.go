package policy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/armord/armord/internal/policy/pattern"
	"github.com/gobwas/glob"
)

// Compile expands a parsed profile's includes against the catalog and
// compiles the result into an immutable Profile. Compilation is
// all-or-nothing: any invalid rule fails the whole profile with a typed
// error naming the offending directive.
func Compile(ps *ProfileSource, catalog Catalog) (*Profile, error) {
	seen := map[string]bool{}
	directives, err := expandIncludes(ps.Directives, catalog, nil, seen)
	if err != nil {
		return nil, fmt.Errorf("profile %q: %w", ps.Name, err)
	}

	p := &Profile{
		Name:   ps.Name,
		Attach: ps.Attach,
		Flags:  append([]Flag(nil), ps.Flags...),
	}
	for name := range seen {
		p.Includes = append(p.Includes, name)
	}
	sort.Strings(p.Includes)

	for _, d := range directives {
		switch d.Kind {
		case DirectiveFile:
			m, err := pattern.Compile(d.File.Pattern)
			if err != nil {
				return nil, &CompileError{Profile: ps.Name, Directive: d.Text(), Line: d.Line, Err: err}
			}
			p.FileRules = append(p.FileRules, FileRule{
				Pattern: d.File.Pattern,
				Perms:   d.File.Perms,
				Owner:   d.File.Owner,
				matcher: m,
			})
		case DirectiveNetwork:
			n := d.Network
			if n.Port != 0 && (n.Port < 1 || n.Port > 65535) {
				return nil, &CompileError{Profile: ps.Name, Directive: d.Text(), Line: d.Line,
					Err: fmt.Errorf("port %d out of range", n.Port)}
			}
			if n.Port != 0 && !n.Bind {
				return nil, &CompileError{Profile: ps.Name, Directive: d.Text(), Line: d.Line,
					Err: fmt.Errorf("port requires a bind rule")}
			}
			p.NetworkRules = append(p.NetworkRules, NetworkRule{
				Family:    n.Family,
				Transport: n.Transport,
				Bind:      n.Bind,
				Port:      n.Port,
			})
		default:
			// expandIncludes leaves only file and network directives.
			return nil, &CompileError{Profile: ps.Name, Directive: d.Text(), Line: d.Line,
				Err: fmt.Errorf("unexpected directive kind %q", d.Kind)}
		}
	}

	if p.Attach != "" && strings.ContainsAny(p.Attach, "*?[{") {
		g, err := glob.Compile(p.Attach, '/')
		if err != nil {
			return nil, &CompileError{Profile: ps.Name, Directive: "attach " + p.Attach, Line: ps.Line,
				Err: fmt.Errorf("invalid attachment pattern: %w", err)}
		}
		p.attachGlob = g
	}

	return p, nil
}

// Empty reports whether the profile compiled to zero rules. Such a profile
// is valid (fully default-deny) but worth a diagnostic.
func (p *Profile) Empty() bool {
	return len(p.FileRules) == 0 && len(p.NetworkRules) == 0
}
