package config

import (
	"encoding/hex"
	"strings"

	"github.com/tturner/doip/internal/discovery"
	"github.com/tturner/doip/internal/doip"
	"github.com/tturner/doip/internal/fsm"
	"github.com/tturner/doip/internal/ident"
	"github.com/tturner/doip/internal/server"
)

// parseHexID decodes an EID/GID field written as colon- or dash-separated
// hex ("00:11:22:33:44:55") or bare hex ("001122334455"); an empty string
// yields a zero-valued 6-byte identifier, which ident.NewEID/NewGID then
// zero-pads like any other short input.
func parseHexID(s string) []byte {
	s = strings.NewReplacer(":", "", "-", "").Replace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}

// Identity converts the loaded identity fields into discovery.Identity.
func (cfg IdentityConfig) Identity() discovery.Identity {
	var action byte
	if cfg.FurtherActionRequired {
		action = 0x10
	}
	return discovery.Identity{
		VIN:               ident.NewVIN(cfg.VIN),
		LogicalAddress:    doip.Address(cfg.LogicalAddress),
		EID:               ident.NewEID(parseHexID(cfg.EID)),
		GID:               ident.NewGID(parseHexID(cfg.GID)),
		FurtherActionCode: action,
	}
}

// DiscoveryConfig converts the announce section into discovery.Config.
func (cfg AnnounceConfig) DiscoveryConfig(port int) discovery.Config {
	mode := discovery.Broadcast
	if cfg.Loopback {
		mode = discovery.Loopback
	}
	return discovery.Config{
		Count:    cfg.Count,
		Interval: cfg.Interval(),
		Mode:     mode,
		Port:     port,
	}
}

// FSMConfig converts the timers section into fsm.Config.
func (cfg TimerConfig) FSMConfig() fsm.Config {
	return fsm.Config{
		InitialInactivity:    cfg.InitialInactivity(),
		GeneralInactivity:    cfg.GeneralInactivity(),
		AliveCheck:           cfg.AliveCheck(),
		Downstream:           cfg.Downstream(),
		MaxAliveCheckRetries: cfg.MaxAliveCheckRetries,
	}
}

// ServerConfig converts the whole loaded document into server.Config, ready
// to hand to server.New.
func (cfg *ServerConfig) ServerConfig() server.Config {
	identity := cfg.Identity.Identity()
	return server.Config{
		Identity:       identity,
		ListenIP:       cfg.Listen.IP,
		TCPPort:        cfg.Listen.TCPPort,
		UDPPort:        cfg.Listen.UDPPort,
		Announce:       cfg.Announce.DiscoveryConfig(cfg.Listen.UDPPort),
		Timers:         cfg.Timers.FSMConfig(),
		MaxMessageSize: cfg.Listen.MaxMessageSize,
	}
}
