package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func peersCmd() *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "peers --address <addr>",
		Short: "Show a peer's counters",
		Long:  "Looks up a single known peer by address. The admin surface has no enumerate-all accessor, so --address is required.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if address == "" {
				return fmt.Errorf("--address is required")
			}

			p, err := getPeer(address)
			if err != nil {
				return err
			}

			out, err := formatPeer(p, outputFormat)
			if err != nil {
				return err
			}

			fmt.Print(out)
			return nil
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "peer address to look up (required)")

	return cmd
}
