package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tturner/doip/internal/apperrors"
	"github.com/tturner/doip/internal/client"
	"github.com/tturner/doip/internal/doip"
)

func newClientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "DoIP tester client: discovery and diagnostic sessions",
	}
	cmd.AddCommand(newClientDiscoverCmd())
	cmd.AddCommand(newClientActivateCmd())
	return cmd
}

type discoverFlags struct {
	timeout  time.Duration
	loopback bool
	port     int
	output   string
}

func newClientDiscoverCmd() *cobra.Command {
	flags := &discoverFlags{}

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Discover DoIP entities via UDP vehicle identification",
		Long: `Broadcast a VehicleIdentificationRequest on the DoIP discovery port and
collect every VehicleIdentificationResponse received before the timeout
elapses.`,
		Example: `  doip client discover
  doip client discover --loopback --timeout 1s
  doip client discover --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClientDiscover(flags)
		},
	}

	cmd.Flags().DurationVar(&flags.timeout, "timeout", 2*time.Second, "Discovery collection window")
	cmd.Flags().BoolVar(&flags.loopback, "loopback", false, "Send to 127.0.0.1 instead of broadcasting")
	cmd.Flags().IntVar(&flags.port, "port", 13400, "Discovery UDP port")
	cmd.Flags().StringVar(&flags.output, "output", "text", "Output format: text|json")

	return cmd
}

func runClientDiscover(flags *discoverFlags) error {
	if flags.output != "text" && flags.output != "json" {
		return fmt.Errorf("invalid output format %q; must be text or json", flags.output)
	}

	ctx, cancel := context.WithTimeout(context.Background(), flags.timeout+time.Second)
	defer cancel()

	found, err := client.Discover(ctx, client.DiscoverOptions{
		Port:     flags.port,
		Timeout:  flags.timeout,
		Loopback: flags.loopback,
	})
	if err != nil {
		return apperrors.WrapNetworkError(err, "255.255.255.255", flags.port)
	}

	if flags.output == "json" {
		data, err := json.MarshalIndent(found, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}
		fmt.Fprintf(os.Stdout, "%s\n", data)
		return nil
	}

	if len(found) == 0 {
		fmt.Fprintf(os.Stdout, "No DoIP entities discovered\n")
		return nil
	}
	fmt.Fprintf(os.Stdout, "Discovered %d entity(ies):\n\n", len(found))
	for i, e := range found {
		fmt.Fprintf(os.Stdout, "Entity %d:\n", i+1)
		fmt.Fprintf(os.Stdout, "  From:            %s\n", e.From)
		fmt.Fprintf(os.Stdout, "  VIN:             %s\n", e.VIN.String())
		fmt.Fprintf(os.Stdout, "  Logical address: 0x%04X\n", e.LogicalAddress)
		fmt.Fprintf(os.Stdout, "  EID:             %s\n", e.EID.String())
		fmt.Fprintf(os.Stdout, "  GID:             %s\n", e.GID.String())
	}
	return nil
}

type activateFlags struct {
	target  string
	sa      uint16
	payload string
	timeout time.Duration
}

func newClientActivateCmd() *cobra.Command {
	flags := &activateFlags{}

	cmd := &cobra.Command{
		Use:   "activate",
		Short: "Dial a DoIP entity, perform routing activation, optionally send a diagnostic payload",
		Example: `  doip client activate --target 192.168.1.10:13400 --sa 0xE000
  doip client activate --target 192.168.1.10:13400 --sa 0xE000 --payload 3E00`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClientActivate(flags)
		},
	}

	cmd.Flags().StringVar(&flags.target, "target", "", "DoIP entity address, host:port (required)")
	cmd.Flags().Uint16Var(&flags.sa, "sa", 0xE000, "Tester source address (0xE000-0xE3FF)")
	cmd.Flags().StringVar(&flags.payload, "payload", "", "Hex-encoded UDS payload to send after activation")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 2*time.Second, "Per-exchange response timeout")
	cmd.MarkFlagRequired("target")

	return cmd
}

func runClientActivate(flags *activateFlags) error {
	ctx, cancel := context.WithTimeout(context.Background(), flags.timeout)
	defer cancel()

	sess, err := client.Dial(ctx, flags.target, doip.Address(flags.sa))
	if err != nil {
		return apperrors.WrapNetworkError(err, flags.target, 0)
	}
	defer sess.Close()

	result, err := sess.Activate(doip.ActivationDefault, flags.timeout)
	if err != nil {
		return apperrors.WrapProtocolError(err, "routing activation")
	}
	fmt.Fprintf(os.Stdout, "routing activation result: %s\n", result)
	if result != doip.RouteActivated && result != doip.RouteActivatedConfirmationRequired {
		return nil
	}

	if flags.payload == "" {
		return nil
	}
	payload, err := decodeHexPayload(flags.payload)
	if err != nil {
		return fmt.Errorf("decode --payload: %w", err)
	}

	reply, err := sess.SendDiagnostic(sess.EntityAddress(), payload, flags.timeout)
	if err != nil {
		return apperrors.WrapProtocolError(err, "diagnostic message send")
	}
	fmt.Fprintf(os.Stdout, "reply payload type: %s\n", reply.PayloadType())
	fmt.Fprintf(os.Stdout, "reply bytes:         %x\n", reply.Payload())
	return nil
}

func decodeHexPayload(s string) ([]byte, error) {
	return hex.DecodeString(s)
}
