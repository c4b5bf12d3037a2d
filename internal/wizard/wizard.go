// Package wizard implements the interactive first-run config builder for
// `doip config init` (D4).
//
// Grounded on the teacher's internal/ui/wizard_form.go/wizard.go: a single
// charmbracelet/huh form whose fields feed a plain options struct, which a
// separate builder function turns into the thing actually persisted (the
// teacher builds a ui.Profile; this package builds a config.ServerConfig).
// Simplified to DoIP's much smaller field set — two groups (identity;
// listen/timers) instead of the teacher's five kind-switched groups, since a DoIP
// server config has no equivalent of CIP's per-request-kind branching.
package wizard

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"

	"github.com/tturner/doip/internal/config"
)

// Answers holds the raw string form fields before they are parsed and
// validated into a config.ServerConfig.
type Answers struct {
	VIN                 string
	LogicalAddress      string
	EID                 string
	GID                 string
	ListenIP            string
	TCPPort             string
	UDPPort             string
	AnnounceLoopback    bool
	GeneralInactivityMs string
}

// DefaultAnswers seeds the form with ISO 13400-2 defaults so accepting
// every field unchanged still produces a valid config.
func DefaultAnswers() Answers {
	return Answers{
		VIN:                 "00000000000000000",
		LogicalAddress:      "0x0E80",
		ListenIP:            "0.0.0.0",
		TCPPort:             "13400",
		UDPPort:             "13400",
		GeneralInactivityMs: "300000",
	}
}

// BuildForm constructs the interactive huh.Form bound to ans's fields.
func BuildForm(ans *Answers) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("VIN").
				Description("17-character Vehicle Identification Number (short values are right-padded with '0').").
				Key("vin").
				Value(&ans.VIN),
			huh.NewInput().
				Title("Logical address").
				Description("This entity's DoIP logical address, e.g. 0x0E80.").
				Key("logical_address").
				Value(&ans.LogicalAddress),
			huh.NewInput().
				Title("EID (optional)").
				Description("6-byte entity identifier as colon-separated hex, e.g. 00:11:22:33:44:55.").
				Key("eid").
				Value(&ans.EID),
			huh.NewInput().
				Title("GID (optional)").
				Description("6-byte group identifier, same format as EID.").
				Key("gid").
				Value(&ans.GID),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Listen IP").
				Key("listen_ip").
				Value(&ans.ListenIP),
			huh.NewInput().
				Title("TCP port").
				Key("tcp_port").
				Value(&ans.TCPPort),
			huh.NewInput().
				Title("UDP port").
				Key("udp_port").
				Value(&ans.UDPPort),
			huh.NewConfirm().
				Title("Announce to loopback only").
				Description("Use for local testing without a broadcast-capable interface.").
				Key("announce_loopback").
				Value(&ans.AnnounceLoopback),
			huh.NewInput().
				Title("General inactivity timeout (ms)").
				Description("ISO default is 300000 (5 minutes).").
				Key("general_inactivity_ms").
				Value(&ans.GeneralInactivityMs),
		),
	)
}

// Build validates ans and converts it into a config.ServerConfig, applying
// the same defaults LoadServerConfig would for any field Build leaves zero.
func Build(ans Answers) (*config.ServerConfig, error) {
	logical, err := parseUint16(ans.LogicalAddress)
	if err != nil {
		return nil, fmt.Errorf("logical address: %w", err)
	}
	tcpPort, err := strconv.Atoi(ans.TCPPort)
	if err != nil {
		return nil, fmt.Errorf("TCP port: %w", err)
	}
	udpPort, err := strconv.Atoi(ans.UDPPort)
	if err != nil {
		return nil, fmt.Errorf("UDP port: %w", err)
	}

	cfg := &config.ServerConfig{
		Identity: config.IdentityConfig{
			VIN:            ans.VIN,
			LogicalAddress: logical,
			EID:            ans.EID,
			GID:            ans.GID,
		},
		Listen: config.ListenConfig{
			IP:      ans.ListenIP,
			TCPPort: tcpPort,
			UDPPort: udpPort,
		},
		Announce: config.AnnounceConfig{
			Loopback: ans.AnnounceLoopback,
		},
	}
	if ans.GeneralInactivityMs != "" {
		ms, err := strconv.Atoi(ans.GeneralInactivityMs)
		if err != nil {
			return nil, fmt.Errorf("general inactivity timeout: %w", err)
		}
		cfg.Timers.GeneralInactivityMs = ms
	}

	cfg.FillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseUint16(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}
