package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func rootsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "roots",
		Short: "Show configured root sets",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			roots, err := getRoots()
			if err != nil {
				return err
			}

			out, err := formatRoots(roots, outputFormat)
			if err != nil {
				return err
			}

			fmt.Print(out)
			return nil
		},
	}
}
