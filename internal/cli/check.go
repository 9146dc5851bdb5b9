package cli

import (
	"fmt"

	"github.com/armord/armord/internal/policy"
	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	var abstractionsDir string

	cmd := &cobra.Command{
		Use:   "check <profile-file>...",
		Short: "Parse and compile profile files, reporting any errors",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := policy.NewDirCatalog(abstractionsDir)
			failed := 0
			for _, file := range args {
				profiles, err := policy.LoadProfileFile(file, catalog)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", file, err)
					failed++
					continue
				}
				for _, p := range profiles {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: profile %q: %d file rules, %d network rules\n",
						file, p.Name, len(p.FileRules), len(p.NetworkRules))
					if p.Empty() {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: warning: profile %q has zero rules (fully default-deny)\n", file, p.Name)
					}
				}
			}
			if failed > 0 {
				return Exitf(1, "%d of %d files failed", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&abstractionsDir, "abstractions", getenvDefault("ARMORD_ABSTRACTIONS_DIR", "."), "root directory for #include resolution")
	return cmd
}
