package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/bizsync/internal/buildinfo"
	"github.com/dmitrijs2005/bizsync/internal/client/config"
)

// appFactory builds the App once flags are parsed.
type appFactory func(ctx context.Context, cfg *config.Config) (*App, error)

// NewRootCmd returns the bizsync command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(NewApp)
}

func newRootCmd(factory appFactory) *cobra.Command {
	var (
		configFile string
		app        *App
	)

	root := &cobra.Command{
		Use:   "bizsync",
		Short: "Offline-first business records client",
		Long: `bizsync keeps invoices, parties, expenses and other business records
on this device and synchronizes them with the server whenever it is
reachable. Every change is saved locally first.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if skipApp(cmd) {
				return nil
			}
			cfg, err := config.LoadConfig(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			app, err = factory(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			app.out = cmd.OutOrStdout()
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if app == nil {
				return nil
			}
			return app.Close()
		},
	}

	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (json, yaml or toml)")
	config.RegisterFlags(root.PersistentFlags())

	addCommands(root, func() *App { return app }, false)
	root.AddCommand(newVersionCmd())
	return root
}

// addCommands attaches every command to parent. In the shell the tree is
// rebuilt per line around the already running App.
func addCommands(parent *cobra.Command, app func() *App, inShell bool) {
	parent.AddCommand(
		newLoginCmd(app),
		newLogoutCmd(app),
		newRegisterCmd(app),
		newCreateCmd(app),
		newGetCmd(app),
		newListCmd(app),
		newUpdateCmd(app),
		newDeleteCmd(app),
		newSyncCmd(app),
		newStatusCmd(app),
		newDeadLettersCmd(app),
		newClearCmd(app),
	)
	if !inShell {
		parent.AddCommand(newShellCmd(app))
	}
}

// skipApp reports commands that run without local storage.
func skipApp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "version", "help", "completion":
			return true
		}
	}
	return false
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			buildinfo.PrintBuildData(cmd.OutOrStdout())
		},
	}
}
