package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadServerConfigAppliesDefaults(t *testing.T) {
	path := writeTemp(t, "server.yaml", `
identity:
  vin: "1HGBH41JXMN109186"
  logical_address: 3712
`)

	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}
	if cfg.Listen.TCPPort != 13400 || cfg.Listen.UDPPort != 13400 {
		t.Fatalf("ports = %d/%d, want 13400/13400", cfg.Listen.TCPPort, cfg.Listen.UDPPort)
	}
	if cfg.Listen.MaxMessageSize != 16*1024*1024 {
		t.Fatalf("max message size = %d, want 16MiB", cfg.Listen.MaxMessageSize)
	}
	if cfg.Announce.Count != 3 || cfg.Announce.IntervalMs != 500 {
		t.Fatalf("announce defaults = %+v", cfg.Announce)
	}
	if cfg.Timers.GeneralInactivityMs != 300000 {
		t.Fatalf("general inactivity default = %d, want 300000", cfg.Timers.GeneralInactivityMs)
	}
	if cfg.Timers.MaxAliveCheckRetries != 3 {
		t.Fatalf("alive check retries default = %d, want 3", cfg.Timers.MaxAliveCheckRetries)
	}
}

func TestLoadServerConfigMissingFileWrapsError(t *testing.T) {
	_, err := LoadServerConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := &ServerConfig{
		Identity: IdentityConfig{VIN: "1HGBH41JXMN109186", LogicalAddress: 0x0E80},
		Listen:   ListenConfig{TCPPort: 70000, UDPPort: 13400, MaxMessageSize: 1024},
		Announce: AnnounceConfig{Count: 1, IntervalMs: 10},
		Timers:   TimerConfig{InitialInactivityMs: 1, GeneralInactivityMs: 1, AliveCheckMs: 1, DownstreamMs: 1, MaxAliveCheckRetries: 1},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for out-of-range TCP port")
	}
}

func TestValidateRejectsOversizeVIN(t *testing.T) {
	cfg := &ServerConfig{
		Identity: IdentityConfig{VIN: "THIS_VIN_IS_DEFINITELY_TOO_LONG", LogicalAddress: 0x0E80},
		Listen:   ListenConfig{TCPPort: 13400, UDPPort: 13400, MaxMessageSize: 1024},
		Announce: AnnounceConfig{Count: 1, IntervalMs: 10},
		Timers:   TimerConfig{InitialInactivityMs: 1, GeneralInactivityMs: 1, AliveCheckMs: 1, DownstreamMs: 1, MaxAliveCheckRetries: 1},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for oversize VIN")
	}
}

func TestClientConfigRejectsSourceAddressOutOfRange(t *testing.T) {
	cfg := &ClientConfig{
		Target:        TargetConfig{Host: "127.0.0.1", Port: 13400},
		SourceAddress: 0x1234,
		Discovery:     DiscoveryOpts{TimeoutMs: 100, Port: 13400},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for source address outside 0xE000-0xE3FF")
	}
}

func TestHashChangesWhenConfigChanges(t *testing.T) {
	a := &ServerConfig{Identity: IdentityConfig{VIN: "1HGBH41JXMN109186", LogicalAddress: 0x0E80}}
	applyServerDefaults(a)
	b := &ServerConfig{Identity: IdentityConfig{VIN: "1HGBH41JXMN109186", LogicalAddress: 0x0E81}}
	applyServerDefaults(b)

	ha, err := a.Hash()
	if err != nil {
		t.Fatalf("Hash a: %v", err)
	}
	hb, err := b.Hash()
	if err != nil {
		t.Fatalf("Hash b: %v", err)
	}
	if ha == hb {
		t.Fatal("hashes should differ for different logical addresses")
	}

	hAgain, err := a.Hash()
	if err != nil {
		t.Fatalf("Hash a again: %v", err)
	}
	if ha != hAgain {
		t.Fatal("hash should be stable across repeated calls on the same config")
	}
}

func TestServerConfigConvertsToServerPackageConfig(t *testing.T) {
	path := writeTemp(t, "server.yaml", `
identity:
  vin: "1HGBH41JXMN109186"
  logical_address: 3712
  eid: "00:11:22:33:44:55"
listen:
  tcp_port: 13400
  udp_port: 13400
`)
	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}
	sc := cfg.ServerConfig()
	if sc.TCPPort != 13400 || sc.UDPPort != 13400 {
		t.Fatalf("converted ports = %d/%d", sc.TCPPort, sc.UDPPort)
	}
	if sc.Identity.LogicalAddress != 3712 {
		t.Fatalf("converted logical address = %v, want 3712", sc.Identity.LogicalAddress)
	}
	if sc.Identity.EID.String() != "00:11:22:33:44:55" {
		t.Fatalf("converted EID = %s, want 00:11:22:33:44:55", sc.Identity.EID.String())
	}
}
