package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tturner/doip/internal/bench"
)

func newBenchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Control a physical test bench over SSH",
	}
	cmd.AddCommand(newBenchResetCmd())
	cmd.AddCommand(newBenchPullLogsCmd())
	return cmd
}

type benchFlags struct {
	host         string
	port         int
	user         string
	identityFile string
	insecure     bool
	resetCommand string
	timeout      time.Duration
}

func addBenchConnectionFlags(cmd *cobra.Command, flags *benchFlags) {
	cmd.Flags().StringVar(&flags.host, "host", "", "Bench host (required)")
	cmd.Flags().IntVar(&flags.port, "port", 22, "SSH port")
	cmd.Flags().StringVar(&flags.user, "user", "", "SSH username (defaults to $USER)")
	cmd.Flags().StringVar(&flags.identityFile, "identity-file", "", "Path to an SSH private key")
	cmd.Flags().BoolVar(&flags.insecure, "insecure-ignore-host-key", false, "Skip SSH host key verification")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 30*time.Second, "Connection timeout")
	cmd.MarkFlagRequired("host")
}

func (f benchFlags) controllerOptions() bench.Options {
	return bench.Options{
		Host:               f.host,
		Port:               f.port,
		User:               f.user,
		KeyFile:            f.identityFile,
		UseAgent:           f.identityFile == "",
		InsecureIgnoreHost: f.insecure,
		ConnectTimeout:     f.timeout,
		ResetCommand:       f.resetCommand,
	}
}

func newBenchResetCmd() *cobra.Command {
	var flags benchFlags

	cmd := &cobra.Command{
		Use:     "reset",
		Short:   "Power-cycle the ECU under test",
		Example: `  doip bench reset --host bench.lan --identity-file ~/.ssh/id_ed25519 --command "relayctl cycle 1"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.resetCommand == "" {
				return fmt.Errorf("--command is required")
			}
			ctrl, err := bench.New(flags.controllerOptions())
			if err != nil {
				return err
			}
			defer ctrl.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
			defer cancel()
			if err := ctrl.Reset(ctx); err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, "bench reset complete")
			return nil
		},
	}
	addBenchConnectionFlags(cmd, &flags)
	cmd.Flags().StringVar(&flags.resetCommand, "command", "", "Remote command that power-cycles the bench")
	return cmd
}

func newBenchPullLogsCmd() *cobra.Command {
	var flags benchFlags
	var remoteDir, localDir string

	cmd := &cobra.Command{
		Use:     "pull-logs",
		Short:   "Download bench-side log files over SFTP",
		Example: `  doip bench pull-logs --host bench.lan --identity-file ~/.ssh/id_ed25519 --remote-dir /var/log/bench --local-dir ./logs`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := bench.New(flags.controllerOptions())
			if err != nil {
				return err
			}
			defer ctrl.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
			defer cancel()
			if err := ctrl.PullLogs(ctx, remoteDir, localDir); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "pulled logs from %s:%s into %s\n", flags.host, remoteDir, localDir)
			return nil
		},
	}
	addBenchConnectionFlags(cmd, &flags)
	cmd.Flags().StringVar(&remoteDir, "remote-dir", "", "Remote directory to download from (required)")
	cmd.Flags().StringVar(&localDir, "local-dir", "./bench-logs", "Local directory to download into")
	cmd.MarkFlagRequired("remote-dir")
	return cmd
}
