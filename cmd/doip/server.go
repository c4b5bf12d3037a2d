package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tturner/doip/internal/appmodel"
	"github.com/tturner/doip/internal/config"
	"github.com/tturner/doip/internal/logging"
	"github.com/tturner/doip/internal/server"
)

type serverFlags struct {
	listenIP      string
	tcpPort       int
	udpPort       int
	configPath    string
	vin           string
	logicalAddr   uint16
	monitorSocket string
}

func newServerCmd() *cobra.Command {
	flags := &serverFlags{}

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run as a DoIP entity (server)",
		Long: `Run doip as a DoIP entity: it answers UDP vehicle-identification
requests, sends the startup vehicle-announcement burst, and accepts TCP
diagnostic sessions (routing activation, alive check, diagnostic message
exchange) on port 13400.

Configuration is loaded from a YAML file (--config). CLI flags override
the loaded values. Press Ctrl+C to stop gracefully.`,
		Example: `  # Start with defaults from a config file
  doip server --config doip_server.yaml

  # Override the listen address and VIN inline
  doip server --config doip_server.yaml --listen-ip 192.168.1.50 --vin 1HGBH41JXMN109186`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runServer(flags); err != nil {
				os.Exit(2)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.configPath, "config", "doip_server.yaml", "Server config file path")
	cmd.Flags().StringVar(&flags.listenIP, "listen-ip", "", "Override listen.ip")
	cmd.Flags().IntVar(&flags.tcpPort, "tcp-port", 0, "Override listen.tcp_port")
	cmd.Flags().IntVar(&flags.udpPort, "udp-port", 0, "Override listen.udp_port")
	cmd.Flags().StringVar(&flags.vin, "vin", "", "Override identity.vin")
	cmd.Flags().Uint16Var(&flags.logicalAddr, "logical-address", 0, "Override identity.logical_address")
	cmd.Flags().StringVar(&flags.monitorSocket, "monitor-socket", "", "Unix socket path to expose a live event feed for 'doip monitor'")

	return cmd
}

func runServer(flags *serverFlags) error {
	cfg, err := config.LoadServerConfig(flags.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: failed to load server config: %v\n", err)
		return fmt.Errorf("load server config: %w", err)
	}

	if flags.listenIP != "" {
		cfg.Listen.IP = flags.listenIP
	}
	if flags.tcpPort != 0 {
		cfg.Listen.TCPPort = flags.tcpPort
	}
	if flags.udpPort != 0 {
		cfg.Listen.UDPPort = flags.udpPort
	}
	if flags.vin != "" {
		cfg.Identity.VIN = flags.vin
	}
	if flags.logicalAddr != 0 {
		cfg.Identity.LogicalAddress = flags.logicalAddr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config after flag overrides: %w", err)
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("parse logging.level: %w", err)
	}
	logger, err := logging.New(level, cfg.Logging.File)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Close()

	identity := cfg.Identity.Identity()
	fmt.Fprintf(os.Stdout, "doip server starting\n")
	fmt.Fprintf(os.Stdout, "  VIN:             %s\n", identity.VIN.String())
	fmt.Fprintf(os.Stdout, "  Logical address: 0x%04X\n", identity.LogicalAddress)
	fmt.Fprintf(os.Stdout, "  Listening on:    %s:%d (TCP), :%d (UDP)\n", cfg.Listen.IP, cfg.Listen.TCPPort, cfg.Listen.UDPPort)
	fmt.Fprintf(os.Stdout, "  Press Ctrl+C to stop\n\n")
	os.Stdout.Sync()

	srvCfg := cfg.ServerConfig()
	srvCfg.EventSocketPath = flags.monitorSocket
	srv := server.New(srvCfg, func() appmodel.Model { return appmodel.BaseModel{} }, logger.AsStdLogger())
	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: failed to start server: %v\n", err)
		return fmt.Errorf("start server: %w", err)
	}
	fmt.Fprintf(os.Stdout, "server started successfully\n")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Fprintf(os.Stdout, "\nshutting down server...\n")
	return srv.Stop()
}
