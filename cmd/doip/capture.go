package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tturner/doip/internal/capture"
)

func newCaptureCmd() *cobra.Command {
	var pcapPath string

	cmd := &cobra.Command{
		Use:     "capture",
		Short:   "Extract DoIP frames from a pcap file",
		Example: `  doip capture --pcap session.pcap`,
		RunE: func(cmd *cobra.Command, args []string) error {
			messages, err := capture.ExtractFromFile(pcapPath)
			if err != nil {
				return err
			}
			if len(messages) == 0 {
				fmt.Fprintln(os.Stdout, "no DoIP frames found")
				return nil
			}
			for _, msg := range messages {
				fmt.Fprintf(os.Stdout, "%s  %s:%d -> %s:%d  %-5s  %-32s  %s\n",
					msg.Timestamp.Format("15:04:05.000000"),
					msg.SrcIP, msg.SrcPort, msg.DstIP, msg.DstPort,
					msg.Transport, msg.Message.PayloadType(), hex.EncodeToString(msg.Message.Payload()))
			}
			fmt.Fprintf(os.Stdout, "\n%d frame(s)\n", len(messages))
			return nil
		},
	}
	cmd.Flags().StringVar(&pcapPath, "pcap", "", "Path to a pcap file to scan (required)")
	cmd.MarkFlagRequired("pcap")
	return cmd
}
