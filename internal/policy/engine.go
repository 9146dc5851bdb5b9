package policy

import (
	"fmt"

	"github.com/armord/armord/internal/events"
	"github.com/armord/armord/internal/metrics"
	"github.com/armord/armord/pkg/types"
)

// Engine evaluates intercepted operations against compiled profiles.
// Evaluation is pure and lock-free: profiles are immutable, the engine
// holds no mutable state, and concurrent Evaluate calls never block each
// other. Evaluation never fails with an error; the enforcement hook always
// gets a definite Decision.
type Engine struct {
	broker  *events.Broker
	metrics *metrics.Collector
}

// NewEngine builds an engine. Both collaborators may be nil.
func NewEngine(broker *events.Broker, collector *metrics.Collector) *Engine {
	return &Engine{broker: broker, metrics: collector}
}

// Evaluate applies the profile to one described operation. The snapshot is
// consulted only for exec profile transitions; callers capture it once at
// entry so a concurrent reload cannot produce a torn view.
func (e *Engine) Evaluate(snap *ProfileSet, p *Profile, op types.Operation) types.Decision {
	d := e.evaluate(snap, p, op)
	e.metrics.IncEvaluation(string(op.Kind), string(d.Effect))
	if !d.Allowed() {
		ev := events.New(events.EventDeniedOperation)
		if p != nil {
			ev.Profile = p.Name
		}
		ev.Path = opPath(op)
		ev.Detail = string(d.Reason)
		e.broker.Publish(ev)
	}
	return d
}

func (e *Engine) evaluate(snap *ProfileSet, p *Profile, op types.Operation) types.Decision {
	if p == nil {
		return types.Deny(types.DenyUnconfined)
	}
	if err := op.Validate(); err != nil {
		return types.Deny(types.DenyInvalidOperation)
	}
	switch op.Kind {
	case types.OpFileAccess:
		return p.checkFile(*op.File)
	case types.OpNetwork:
		return p.checkNetwork(*op.Network)
	case types.OpExec:
		return e.checkExec(snap, p, *op.Exec)
	}
	return types.Deny(types.DenyInvalidOperation)
}

// checkFile grants the union of bits across every matching rule. There is
// no deny directive in the grammar and no most-specific-wins precedence:
// only omission denies. A request for any bit outside the union denies the
// whole request.
func (p *Profile) checkFile(fa types.FileAccess) types.Decision {
	var granted types.Perm
	for i := range p.FileRules {
		r := &p.FileRules[i]
		if r.Matches(fa.Path, fa.UID, fa.OwnerUID) {
			granted |= r.Perms
		}
	}
	if granted == 0 {
		return types.Deny(types.DenyNoMatchingRule)
	}
	if !granted.Has(fa.Requested) {
		return types.Deny(types.DenyPartialGrant)
	}
	return types.Allow(granted)
}

// checkNetwork authorizes socket operations. A rule without bind grants
// general protocol use: outbound connect on any port. Binding requires an
// explicit bind rule whose port matches exactly, or a bind rule naming no
// port at all, which covers every port for its family and transport. "May
// use this protocol" never implies "may listen on this exact port".
func (p *Profile) checkNetwork(n types.NetworkOp) types.Decision {
	familyTransportMatched := false
	for _, r := range p.NetworkRules {
		if r.Family != types.FamilyAny && r.Family != n.Family {
			continue
		}
		if r.Transport != types.TransportAny && r.Transport != n.Transport {
			continue
		}
		familyTransportMatched = true
		switch n.Direction {
		case types.DirectionConnect:
			if !r.Bind {
				return types.Allow(0)
			}
		case types.DirectionBind:
			if r.Bind && (r.Port == 0 || r.Port == n.Port) {
				return types.Allow(0)
			}
		}
	}
	if n.Direction == types.DirectionBind && familyTransportMatched {
		return types.Deny(types.DenyBindNotAuthorized)
	}
	return types.Deny(types.DenyNoMatchingRule)
}

// checkExec classifies an execution attempt. Execute rules come in two
// kinds: inherit (ix) keeps the child under the caller's profile,
// transition (px) switches the child to the target binary's own attached
// profile. Absence of an execute rule for the path is denial of execution
// outright, and a px target with no attachable profile is denied rather
// than run unconfined.
func (e *Engine) checkExec(snap *ProfileSet, p *Profile, ex types.ExecOp) types.Decision {
	var granted types.Perm
	rule := ""
	for i := range p.FileRules {
		r := &p.FileRules[i]
		if r.Owner || r.Perms&types.PermExec == 0 {
			continue
		}
		if r.matcher.Match(ex.Target) {
			granted |= r.Perms
			if rule == "" {
				rule = r.Pattern
			}
		}
	}
	if granted&types.PermExec == 0 {
		return types.Deny(types.DenyExecNoRule)
	}

	// When the union carries both modes, inherit wins: it is the narrower
	// transition (the child stays confined by the current profile).
	if granted.Has(types.PermExecInherit) {
		d := types.Allow(granted)
		d.Rule = rule
		d.Transition = types.TransitionInherit
		d.TargetProfile = p.Name
		return d
	}

	var target *Profile
	ok := false
	if snap != nil {
		target, ok = snap.Attachment(ex.Target)
	}
	if !ok {
		ev := events.New(events.EventUnconfinedExecution)
		ev.Profile = p.Name
		ev.Path = ex.Target
		ev.Detail = fmt.Sprintf("execute transition from %q: no profile attaches to target", p.Name)
		e.broker.Publish(ev)
		return types.Deny(types.DenyExecNoRule)
	}
	d := types.Allow(granted)
	d.Rule = rule
	d.Transition = types.TransitionNewProfile
	d.TargetProfile = target.Name
	return d
}

func opPath(op types.Operation) string {
	switch op.Kind {
	case types.OpFileAccess:
		if op.File != nil {
			return op.File.Path
		}
	case types.OpExec:
		if op.Exec != nil {
			return op.Exec.Target
		}
	case types.OpNetwork:
		if op.Network != nil {
			return fmt.Sprintf("%s/%s %s %d", op.Network.Family, op.Network.Transport, op.Network.Direction, op.Network.Port)
		}
	}
	return ""
}
