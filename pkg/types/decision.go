package types

// Effect is the outcome of evaluating one operation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// DenyReason classifies why an operation was denied. Denials are normal
// Decision outcomes, not errors.
type DenyReason string

const (
	DenyNoMatchingRule    DenyReason = "no_matching_rule"
	DenyPartialGrant      DenyReason = "permission_not_granted"
	DenyBindNotAuthorized DenyReason = "bind_port_not_authorized"
	DenyExecNoRule        DenyReason = "exec_no_rule"
	DenyInvalidOperation  DenyReason = "invalid_operation"
	DenyUnconfined        DenyReason = "no_attached_profile"
)

// ExecTransition classifies an allowed exec: the child either inherits the
// caller's profile or transitions to the target binary's own profile.
type ExecTransition string

const (
	TransitionInherit    ExecTransition = "inherit"
	TransitionNewProfile ExecTransition = "transition"
)

// Decision is the synchronous answer returned for every evaluated operation.
type Decision struct {
	Effect  Effect     `json:"effect"`
	Granted Perm       `json:"granted,omitempty"`
	Reason  DenyReason `json:"reason,omitempty"`

	// Rule is the pattern or directive text of the rule that decided the
	// outcome, when a single rule did.
	Rule string `json:"rule,omitempty"`

	// Exec transition details, set only for allowed exec operations.
	Transition    ExecTransition `json:"transition,omitempty"`
	TargetProfile string         `json:"target_profile,omitempty"`
}

// Allowed reports whether the decision permits the operation.
func (d Decision) Allowed() bool { return d.Effect == EffectAllow }

// Allow builds an allow decision granting the given bits.
func Allow(granted Perm) Decision {
	return Decision{Effect: EffectAllow, Granted: granted}
}

// Deny builds a deny decision with a reason code.
func Deny(reason DenyReason) Decision {
	return Decision{Effect: EffectDeny, Reason: reason}
}
