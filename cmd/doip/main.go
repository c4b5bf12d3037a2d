// Command doip is the server/client/tooling CLI for ISO 13400-2 DoIP.
//
// Grounded directly on the teacher's cmd/cipdip/main.go: a single cobra
// root command, one file per subcommand, SilenceUsage/SilenceErrors so
// runtime errors print once through the top-level error handler.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "doip",
		Short: "DoIP (ISO 13400-2) server, client, and diagnostic tooling",
		Long: `doip implements a DoIP entity (server), a DoIP tester (client), and
supporting tooling for working with diagnostics-over-IP traffic:
vehicle-announcement discovery, pcap frame extraction, SSH bench control,
and a live session monitor.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newServerCmd())
	rootCmd.AddCommand(newClientCmd())
	rootCmd.AddCommand(newCaptureCmd())
	rootCmd.AddCommand(newBenchCmd())
	rootCmd.AddCommand(newMonitorCmd())
	rootCmd.AddCommand(newConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
