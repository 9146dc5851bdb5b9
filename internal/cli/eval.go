package cli

import (
	"encoding/json"
	"fmt"

	"github.com/armord/armord/internal/policy"
	"github.com/armord/armord/pkg/types"
	"github.com/spf13/cobra"
)

// newEvalCmd builds the one-shot evaluator: load a profile directory,
// describe a single operation with flags, print the decision as JSON.
// Exit code 0 means allowed, 1 denied.
func newEvalCmd() *cobra.Command {
	var (
		profileDir      string
		abstractionsDir string
		binary          string
		profileName     string

		kind      string
		path      string
		perms     string
		family    string
		transport string
		direction string
		port      int
		target    string
		uid       int
		ownerUID  int
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate one operation against the compiled profile set",
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := buildOperation(kind, path, perms, family, transport, direction, port, target, uid, ownerUID)
			if err != nil {
				return err
			}

			manager := policy.NewManager(profileDir, abstractionsDir, nil, nil)
			if err := manager.Reload(); err != nil {
				return err
			}
			snap := manager.Snapshot()

			var prof *policy.Profile
			switch {
			case profileName != "":
				p, ok := snap.ByName(profileName)
				if !ok {
					return fmt.Errorf("profile %q not found", profileName)
				}
				prof = p
			default:
				prof, _ = snap.Attachment(binary)
			}

			decision := policy.NewEngine(nil, nil).Evaluate(snap, prof, op)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(decision); err != nil {
				return err
			}
			if !decision.Allowed() {
				return &ExitError{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&profileDir, "profiles", getenvDefault("ARMORD_PROFILE_DIR", "/etc/armord/profiles"), "profile directory")
	cmd.Flags().StringVar(&abstractionsDir, "abstractions", getenvDefault("ARMORD_ABSTRACTIONS_DIR", ""), "root directory for #include resolution (defaults to profile dir)")
	cmd.Flags().StringVar(&binary, "binary", "", "process image path (empty = unresolved image)")
	cmd.Flags().StringVar(&profileName, "profile", "", "evaluate against a named profile instead of resolving attachment")

	cmd.Flags().StringVar(&kind, "kind", "file", "operation kind: file|network|exec")
	cmd.Flags().StringVar(&path, "path", "", "file path (kind=file)")
	cmd.Flags().StringVar(&perms, "perms", "r", "requested permissions, e.g. rw (kind=file)")
	cmd.Flags().IntVar(&uid, "uid", 0, "accessing uid (kind=file)")
	cmd.Flags().IntVar(&ownerUID, "owner-uid", 0, "path owner uid (kind=file)")
	cmd.Flags().StringVar(&family, "family", "inet", "address family: inet|inet6 (kind=network)")
	cmd.Flags().StringVar(&transport, "transport", "stream", "transport: stream|dgram (kind=network)")
	cmd.Flags().StringVar(&direction, "op", "connect", "socket operation: connect|bind (kind=network)")
	cmd.Flags().IntVar(&port, "port", 0, "port (kind=network)")
	cmd.Flags().StringVar(&target, "target", "", "target binary path (kind=exec)")
	return cmd
}

func buildOperation(kind, path, perms, family, transport, direction string, port int, target string, uid, ownerUID int) (types.Operation, error) {
	switch kind {
	case "file":
		requested, err := types.ParsePerm(perms)
		if err != nil {
			return types.Operation{}, err
		}
		return types.Operation{Kind: types.OpFileAccess, File: &types.FileAccess{
			Path: path, Requested: requested, UID: uid, OwnerUID: ownerUID,
		}}, nil
	case "network":
		return types.Operation{Kind: types.OpNetwork, Network: &types.NetworkOp{
			Family:    types.Family(family),
			Transport: types.Transport(transport),
			Direction: types.NetDirection(direction),
			Port:      port,
		}}, nil
	case "exec":
		return types.Operation{Kind: types.OpExec, Exec: &types.ExecOp{Target: target}}, nil
	}
	return types.Operation{}, fmt.Errorf("unknown operation kind %q", kind)
}
