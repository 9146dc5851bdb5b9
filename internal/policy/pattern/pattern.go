// Package pattern provides compiled path pattern matching for file rules.
// Patterns use profile wildcard grammar: `*` matches within one path
// segment, `**` spans segments, `?` matches one character, and `[...]` and
// `{a,b}` work as in shell globs. Each pattern is compiled once at profile
// compile time so the evaluation hot path stays allocation-free.
package pattern

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// Pattern is a compiled path pattern.
type Pattern struct {
	raw      string
	compiled glob.Glob
	literal  bool
}

// Compile compiles a path pattern. Pattern strings must be absolute paths.
func Compile(s string) (*Pattern, error) {
	if s == "" {
		return nil, fmt.Errorf("empty pattern")
	}
	if !strings.HasPrefix(s, "/") {
		return nil, fmt.Errorf("pattern %q is not an absolute path", s)
	}
	if !strings.ContainsAny(s, "*?[{") {
		return &Pattern{raw: s, literal: true}, nil
	}
	g, err := glob.Compile(s, '/')
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", s, err)
	}
	return &Pattern{raw: s, compiled: g}, nil
}

// Match reports whether the candidate path matches the pattern.
func (p *Pattern) Match(path string) bool {
	if p.literal {
		return path == p.raw
	}
	return p.compiled.Match(path)
}

// IsLiteral reports whether the pattern contains no wildcards.
func (p *Pattern) IsLiteral() bool { return p.literal }

// String returns the original pattern text.
func (p *Pattern) String() string { return p.raw }
