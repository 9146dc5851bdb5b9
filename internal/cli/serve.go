package cli

import (
	"os/signal"
	"syscall"

	"github.com/armord/armord/internal/config"
	"github.com/armord/armord/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var configPath string
	var profileDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the armord engine daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg *config.Config
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			} else {
				cfg = config.Default()
			}
			if profileDir != "" {
				cfg.Profiles.Dir = profileDir
			}
			cfg.Logging.Setup()

			srv, err := server.New(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", getenvDefault("ARMORD_CONFIG", ""), "config file path")
	cmd.Flags().StringVar(&profileDir, "profiles", getenvDefault("ARMORD_PROFILE_DIR", ""), "profile directory (overrides config)")
	return cmd
}
