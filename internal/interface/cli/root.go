package cli

import (
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/wassup-/textpod/internal/app"
	"github.com/wassup-/textpod/internal/app/config"
	infraconfig "github.com/wassup-/textpod/internal/infra/config"
	"github.com/wassup-/textpod/internal/interface/cli/version"
)

// globalConfig holds the loaded configuration for all commands
var globalConfig config.Config

func NewRoot() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "textpod",
		Short: "Personal note capture service",
		Long:  "Append-only daily notes with full-text search and automatic archiving of referenced webpages and media.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load configuration before any command runs
			// Priority: setting.json > defaults
			baseDir := ".textpod"
			if home := os.Getenv("TEXTPOD_HOME"); home != "" {
				baseDir = home
			}

			cfg, err := infraconfig.LoadSettings(afero.NewOsFs(), baseDir)
			if err != nil {
				// Continue with defaults if loading fails
				app.GetLogger().Warn("load settings: %v, continuing with defaults", err)
				cfg, _ = infraconfig.LoadSettings(afero.NewMemMapFs(), baseDir)
			}
			globalConfig = cfg
			return nil
		},
		RunE: func(c *cobra.Command, _ []string) error { return c.Help() },
	}
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(version.NewCommand())
	return cmd
}
