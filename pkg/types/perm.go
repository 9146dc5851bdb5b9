package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Perm is a set of file permission bits granted or requested for a path.
type Perm uint8

const (
	PermRead Perm = 1 << iota
	PermWrite
	PermLock
	PermExecInherit
	PermExecTransition
)

// PermExec covers both execute transition kinds.
const PermExec = PermExecInherit | PermExecTransition

// Has reports whether every bit in p2 is set in p.
func (p Perm) Has(p2 Perm) bool { return p&p2 == p2 }

// String renders the permission set in profile letter notation, e.g. "rwk",
// "rix", "px". A zero set renders as an empty string.
func (p Perm) String() string {
	var b strings.Builder
	if p.Has(PermRead) {
		b.WriteByte('r')
	}
	if p.Has(PermWrite) {
		b.WriteByte('w')
	}
	if p.Has(PermLock) {
		b.WriteByte('k')
	}
	if p.Has(PermExecInherit) {
		b.WriteString("ix")
	}
	if p.Has(PermExecTransition) {
		b.WriteString("px")
	}
	return b.String()
}

// ParsePerm parses profile letter notation into a permission set.
// Accepted letters: r, w, k, and the execute modes ix and px. A rule may
// not combine the two execute modes, and the set must be non-empty.
func ParsePerm(s string) (Perm, error) {
	var p Perm
	i := 0
	for i < len(s) {
		switch {
		case s[i] == 'r':
			p |= PermRead
			i++
		case s[i] == 'w':
			p |= PermWrite
			i++
		case s[i] == 'k':
			p |= PermLock
			i++
		case strings.HasPrefix(s[i:], "ix"):
			p |= PermExecInherit
			i += 2
		case strings.HasPrefix(s[i:], "px"):
			p |= PermExecTransition
			i += 2
		default:
			return 0, fmt.Errorf("unknown permission %q in %q", s[i:], s)
		}
	}
	if p == 0 {
		return 0, fmt.Errorf("empty permission set")
	}
	if p.Has(PermExecInherit) && p.Has(PermExecTransition) {
		return 0, fmt.Errorf("conflicting execute modes in %q", s)
	}
	return p, nil
}

// MarshalJSON encodes the set as its letter notation.
func (p Perm) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts letter notation; an empty string is the zero set.
func (p *Perm) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*p = 0
		return nil
	}
	v, err := ParsePerm(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}
