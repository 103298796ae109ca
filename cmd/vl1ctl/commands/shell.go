package commands

import (
	"fmt"

	"github.com/reeflective/console"
	"github.com/spf13/cobra"
)

func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive vl1ctl console",
		Long:  "Launches an interactive console (readline, history, completion) for inspecting a running vl1d node.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			app := console.New("vl1ctl")

			menu := app.ActiveMenu()
			menu.SetCommands(func() *cobra.Command {
				return shellRootCmd()
			})

			if err := app.Start(); err != nil {
				return fmt.Errorf("start console: %w", err)
			}

			return nil
		},
	}
}

// shellRootCmd builds the command tree offered inside the interactive
// console: every vl1ctl command except shell itself, since a shell within
// a shell makes no sense.
func shellRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vl1ctl",
		Short:         "vl1ctl interactive console",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(statusCmd())
	root.AddCommand(peersCmd())
	root.AddCommand(rootsCmd())
	root.AddCommand(versionCmd())

	return root
}
