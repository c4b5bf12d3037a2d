package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tturner/doip/internal/config"
	"github.com/tturner/doip/internal/wizard"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Build and validate server config files",
	}
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigValidateCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactively build a server config file",
		Example: `  doip config init --out doip_server.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ans := wizard.DefaultAnswers()
			form := wizard.BuildForm(&ans)
			if err := form.Run(); err != nil {
				return fmt.Errorf("run wizard: %w", err)
			}

			cfg, err := wizard.Build(ans)
			if err != nil {
				return fmt.Errorf("build config: %w", err)
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(os.Stdout, "wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "doip_server.yaml", "Output path for the generated config file")
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a server config file",
		Example: `  doip config validate --config doip_server.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServerConfig(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "%s is valid\n", path)
			fmt.Fprintf(os.Stdout, "  VIN:             %s\n", cfg.Identity.VIN)
			fmt.Fprintf(os.Stdout, "  Logical address: 0x%04X\n", cfg.Identity.LogicalAddress)
			fmt.Fprintf(os.Stdout, "  Listen:          %s:%d (TCP), :%d (UDP)\n", cfg.Listen.IP, cfg.Listen.TCPPort, cfg.Listen.UDPPort)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "config", "doip_server.yaml", "Config file path")
	return cmd
}
