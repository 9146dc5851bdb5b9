// Package policy implements the confinement profile engine: parsing profile
// source text, resolving abstraction includes, compiling rules into immutable
// profiles, and evaluating intercepted operations against them.
package policy

import (
	"fmt"
	"strings"

	"github.com/armord/armord/internal/policy/pattern"
	"github.com/armord/armord/pkg/types"
	"github.com/gobwas/glob"
)

// Flag is a profile attachment flag.
type Flag string

const (
	// FlagAttachDisconnected lets the profile attach to a process whose
	// binary path cannot be resolved in the visible filesystem view.
	FlagAttachDisconnected Flag = "attach_disconnected"
	// FlagComplain marks the profile as non-enforcing in the source grammar.
	// It is parsed and carried but does not change evaluation here.
	FlagComplain Flag = "complain"
	// FlagMediateDeleted is accepted for grammar compatibility.
	FlagMediateDeleted Flag = "mediate_deleted"
)

var knownFlags = map[Flag]struct{}{
	FlagAttachDisconnected: {},
	FlagComplain:           {},
	FlagMediateDeleted:     {},
}

// DirectiveKind discriminates parsed profile directives.
type DirectiveKind string

const (
	DirectiveFile    DirectiveKind = "file"
	DirectiveNetwork DirectiveKind = "network"
	DirectiveInclude DirectiveKind = "include"
)

// Directive is one parsed profile statement. Exactly one of the
// kind-specific fields is populated, matching Kind.
type Directive struct {
	Kind DirectiveKind
	Line int

	File    *FileDirective
	Network *NetworkDirective
	Include string
}

// Text renders the directive roughly as written, for diagnostics.
func (d Directive) Text() string {
	switch d.Kind {
	case DirectiveFile:
		if d.File.Owner {
			return fmt.Sprintf("owner %s %s", d.File.Pattern, d.File.Perms)
		}
		return fmt.Sprintf("%s %s", d.File.Pattern, d.File.Perms)
	case DirectiveNetwork:
		var b strings.Builder
		b.WriteString("network")
		if d.Network.Family != types.FamilyAny {
			b.WriteString(" " + string(d.Network.Family))
		}
		if d.Network.Transport != types.TransportAny {
			b.WriteString(" " + string(d.Network.Transport))
		}
		if d.Network.Bind {
			b.WriteString(" bind")
			if d.Network.Port > 0 {
				fmt.Fprintf(&b, " port %d", d.Network.Port)
			}
		}
		return b.String()
	case DirectiveInclude:
		return fmt.Sprintf("#include <%s>", d.Include)
	}
	return string(d.Kind)
}

// FileDirective is a parsed file rule before compilation.
type FileDirective struct {
	Pattern string
	Perms   types.Perm
	Owner   bool
}

// NetworkDirective is a parsed network rule before compilation.
type NetworkDirective struct {
	Family    types.Family
	Transport types.Transport
	Bind      bool
	Port      int // 0 when the rule names no port (bind to any port)
}

// ProfileSource is one parsed profile block: header plus directives, prior
// to include expansion and compilation.
type ProfileSource struct {
	Name       string
	Attach     string
	Flags      []Flag
	Directives []Directive
	Line       int
}

// HasFlag reports whether the source block declares the flag.
func (s *ProfileSource) HasFlag(f Flag) bool {
	for _, have := range s.Flags {
		if have == f {
			return true
		}
	}
	return false
}

// FileRule is a compiled file rule.
type FileRule struct {
	Pattern string
	Perms   types.Perm
	Owner   bool

	matcher *pattern.Pattern
}

// Matches reports whether the rule applies to the given access: the path
// must match the pattern, and owner rules require the accessing user to own
// the path.
func (r *FileRule) Matches(path string, uid, ownerUID int) bool {
	if r.Owner && uid != ownerUID {
		return false
	}
	return r.matcher.Match(path)
}

// NetworkRule is a compiled network rule.
type NetworkRule struct {
	Family    types.Family
	Transport types.Transport
	Bind      bool
	Port      int // 0 = any port (bind rules only)
}

// Profile is a compiled, immutable confinement profile. It is created by
// Compile, shared by reference across concurrent evaluations, and replaced
// wholesale on reload.
type Profile struct {
	Name   string
	Attach string
	Flags  []Flag

	FileRules    []FileRule
	NetworkRules []NetworkRule

	// Includes lists the fragment names expanded into this profile.
	Includes []string

	attachGlob glob.Glob // nil when Attach is a literal path
}

// HasFlag reports whether the compiled profile carries the flag.
func (p *Profile) HasFlag(f Flag) bool {
	for _, have := range p.Flags {
		if have == f {
			return true
		}
	}
	return false
}

// AttachMatches reports whether the profile's attachment specifier covers
// the given binary path.
func (p *Profile) AttachMatches(binary string) bool {
	if p.Attach == "" || binary == "" {
		return false
	}
	if p.attachGlob != nil {
		return p.attachGlob.Match(binary)
	}
	return p.Attach == binary
}
