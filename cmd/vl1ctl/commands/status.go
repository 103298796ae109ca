package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the node's current status",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			s, err := getStatus()
			if err != nil {
				return err
			}

			out, err := formatStatus(s, outputFormat)
			if err != nil {
				return err
			}

			fmt.Print(out)
			return nil
		},
	}
}
