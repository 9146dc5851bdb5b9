package policy

import (
	"fmt"
	"strings"
)

// ParseError reports a malformed directive. It is fatal to compiling the
// profile that contains it.
type ParseError struct {
	Line   int
	Column int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at %d:%d: %s", e.Line, e.Column, e.Msg)
}

// CompileError reports a structurally valid directive with invalid semantic
// content. Compilation is all-or-nothing per profile.
type CompileError struct {
	Profile   string
	Directive string
	Line      int
	Err       error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("profile %q: directive %q at line %d: %v", e.Profile, e.Directive, e.Line, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// CyclicInclusionError reports an include chain that revisits a fragment
// still being expanded.
type CyclicInclusionError struct {
	Chain []string
}

func (e *CyclicInclusionError) Error() string {
	return fmt.Sprintf("cyclic inclusion: %s", strings.Join(e.Chain, " -> "))
}

// UnresolvedInclusionError reports a fragment name the catalog does not know.
type UnresolvedInclusionError struct {
	Name string
}

func (e *UnresolvedInclusionError) Error() string {
	return fmt.Sprintf("unresolved inclusion %q", e.Name)
}
