package policy

import "fmt"

// ProfileSet is an immutable snapshot of all compiled profiles. Snapshots
// are shared by reference across concurrent evaluations and replaced
// wholesale on reload.
type ProfileSet struct {
	profiles []*Profile // declaration order
	byName   map[string]*Profile
	byAttach map[string]*Profile // literal attachment paths only
}

// NewProfileSet builds a snapshot. Profile names must be unique; literal
// attachment paths must not collide.
func NewProfileSet(profiles []*Profile) (*ProfileSet, error) {
	s := &ProfileSet{
		profiles: profiles,
		byName:   make(map[string]*Profile, len(profiles)),
		byAttach: make(map[string]*Profile, len(profiles)),
	}
	for _, p := range profiles {
		if _, dup := s.byName[p.Name]; dup {
			return nil, fmt.Errorf("duplicate profile name %q", p.Name)
		}
		s.byName[p.Name] = p
		if p.Attach != "" && p.attachGlob == nil {
			if prev, dup := s.byAttach[p.Attach]; dup {
				return nil, fmt.Errorf("profiles %q and %q attach to the same path %q", prev.Name, p.Name, p.Attach)
			}
			s.byAttach[p.Attach] = p
		}
	}
	return s, nil
}

// Profiles returns the snapshot's profiles in declaration order.
func (s *ProfileSet) Profiles() []*Profile { return s.profiles }

// Len returns the number of profiles in the snapshot.
func (s *ProfileSet) Len() int { return len(s.profiles) }

// ByName looks a profile up by name.
func (s *ProfileSet) ByName(name string) (*Profile, bool) {
	p, ok := s.byName[name]
	return p, ok
}

// Attachment maps a process image path to its profile. Exact attachment
// paths take priority over patterns; patterns are tried in declaration
// order. An empty binary path means the image could not be resolved in the
// visible filesystem view: only profiles flagged attach_disconnected may
// attach then. A false return means the process runs unconfined.
func (s *ProfileSet) Attachment(binary string) (*Profile, bool) {
	if binary == "" {
		for _, p := range s.profiles {
			if p.HasFlag(FlagAttachDisconnected) {
				return p, true
			}
		}
		return nil, false
	}
	if p, ok := s.byAttach[binary]; ok {
		return p, true
	}
	for _, p := range s.profiles {
		if p.attachGlob != nil && p.AttachMatches(binary) {
			return p, true
		}
	}
	return nil, false
}
