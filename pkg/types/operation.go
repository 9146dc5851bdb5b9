package types

import "fmt"

// OpKind identifies the class of an intercepted operation.
type OpKind string

const (
	OpFileAccess OpKind = "file_access"
	OpNetwork    OpKind = "network_op"
	OpExec       OpKind = "exec"
)

// Family is a socket address family. Empty means unspecified (any).
type Family string

const (
	FamilyInet  Family = "inet"
	FamilyInet6 Family = "inet6"
	FamilyAny   Family = ""
)

// Transport is a socket transport. Empty means unspecified (any).
type Transport string

const (
	TransportStream Transport = "stream"
	TransportDgram  Transport = "dgram"
	TransportAny    Transport = ""
)

// NetDirection is the side of a socket operation being checked.
type NetDirection string

const (
	DirectionConnect NetDirection = "connect"
	DirectionBind    NetDirection = "bind"
)

// Operation describes one intercepted operation. It is constructed by the
// enforcement hook per call and not retained by the engine. Exactly one of
// the kind-specific payloads must be set, matching Kind.
type Operation struct {
	Kind    OpKind      `json:"kind"`
	File    *FileAccess `json:"file,omitempty"`
	Network *NetworkOp  `json:"network,omitempty"`
	Exec    *ExecOp     `json:"exec,omitempty"`
}

// FileAccess describes a filesystem access attempt.
type FileAccess struct {
	Path      string `json:"path"`
	Requested Perm   `json:"requested"`
	// UID is the accessing user; OwnerUID is the owner of the target path.
	// Rules with an owner qualifier apply only when the two match.
	UID      int `json:"uid"`
	OwnerUID int `json:"owner_uid"`
}

// NetworkOp describes a socket operation attempt.
type NetworkOp struct {
	Family    Family       `json:"family"`
	Transport Transport    `json:"transport"`
	Direction NetDirection `json:"direction"`
	Port      int          `json:"port,omitempty"`
}

// ExecOp describes a process-image execution attempt.
type ExecOp struct {
	Target string `json:"target"`
}

// Validate checks that the descriptor is internally consistent.
func (op Operation) Validate() error {
	switch op.Kind {
	case OpFileAccess:
		if op.File == nil {
			return fmt.Errorf("file_access operation missing file payload")
		}
		if op.File.Path == "" {
			return fmt.Errorf("file_access operation missing path")
		}
		if op.File.Requested == 0 {
			return fmt.Errorf("file_access operation requests no permissions")
		}
	case OpNetwork:
		if op.Network == nil {
			return fmt.Errorf("network_op operation missing network payload")
		}
		switch op.Network.Direction {
		case DirectionConnect, DirectionBind:
		default:
			return fmt.Errorf("unknown network direction %q", op.Network.Direction)
		}
		if op.Network.Direction == DirectionBind && (op.Network.Port < 1 || op.Network.Port > 65535) {
			return fmt.Errorf("bind operation port %d out of range", op.Network.Port)
		}
	case OpExec:
		if op.Exec == nil || op.Exec.Target == "" {
			return fmt.Errorf("exec operation missing target")
		}
	default:
		return fmt.Errorf("unknown operation kind %q", op.Kind)
	}
	return nil
}
