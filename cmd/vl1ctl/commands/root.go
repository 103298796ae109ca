package commands

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// httpClient is the admin-surface HTTP client, shared by all commands.
	httpClient = &http.Client{Timeout: 10 * time.Second}

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string

	// serverAddr is the vl1d admin surface address (host:port).
	serverAddr string
)

// rootCmd is the top-level cobra command for vl1ctl.
var rootCmd = &cobra.Command{
	Use:   "vl1ctl",
	Short: "CLI client for the vl1d node",
	Long:  "vl1ctl talks to a running vl1d node's admin HTTP surface to inspect its peers, roots, and status.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:9994",
		"vl1d admin surface address (host:port)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(peersCmd())
	rootCmd.AddCommand(rootsCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(shellCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func adminURL(path string) string {
	return "http://" + serverAddr + path
}
