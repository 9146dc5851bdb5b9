package cli

import (
	"fmt"
	"strings"

	"github.com/armord/armord/internal/policy"
	"github.com/spf13/cobra"
)

// newProfilesCmd lists the compiled profiles in a directory, one line
// each, the way the daemon would load them.
func newProfilesCmd() *cobra.Command {
	var profileDir string
	var abstractionsDir string

	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List the profiles a directory compiles to",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager := policy.NewManager(profileDir, abstractionsDir, nil, nil)
			if err := manager.Reload(); err != nil {
				return err
			}
			snap := manager.Snapshot()
			for _, p := range snap.Profiles() {
				flags := ""
				if len(p.Flags) > 0 {
					parts := make([]string, len(p.Flags))
					for i, f := range p.Flags {
						parts[i] = string(f)
					}
					flags = " flags=(" + strings.Join(parts, ",") + ")"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s%s\t%d file rules, %d network rules\n",
					p.Name, p.Attach, flags, len(p.FileRules), len(p.NetworkRules))
			}
			if snap.Len() == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "no profiles loaded")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&profileDir, "profiles", getenvDefault("ARMORD_PROFILE_DIR", "/etc/armord/profiles"), "profile directory")
	cmd.Flags().StringVar(&abstractionsDir, "abstractions", getenvDefault("ARMORD_ABSTRACTIONS_DIR", ""), "root directory for #include resolution (defaults to profile dir)")
	return cmd
}
