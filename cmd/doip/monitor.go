package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/tturner/doip/internal/tui"
)

func newMonitorCmd() *cobra.Command {
	var attach string

	cmd := &cobra.Command{
		Use:     "monitor",
		Short:   "Attach a live view of a running server's open connections",
		Example: `  doip monitor --attach unix:///tmp/doip.sock`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := strings.TrimPrefix(attach, "unix://")
			if path == attach {
				return fmt.Errorf("--attach must be a unix:// socket path, got %q", attach)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigChan
				cancel()
			}()

			events, err := tui.Dial(ctx, path)
			if err != nil {
				return err
			}

			model := tui.NewModel(events)
			program := tea.NewProgram(model)
			_, err = program.Run()
			return err
		},
	}
	cmd.Flags().StringVar(&attach, "attach", "", "unix:// socket path published by a running 'doip server --monitor-socket ...' (required)")
	cmd.MarkFlagRequired("attach")
	return cmd
}
