// Package config loads and validates the YAML server/client configuration.
//
// Grounded on the teacher's internal/config/config.go: the same
// read-file/yaml.Unmarshal/apply-defaults/Validate pipeline, and the same
// nested-struct-with-yaml-tags shape, retargeted from CIPDIP's
// adapter/ENIP/fault sections to DoIP's identity/timer/announce sections
// (spec.md §6, "Configuration options (server)"). The Hash method follows
// the teacher's use of github.com/mitchellh/hashstructure/v2 to detect
// whether a reloaded config actually changed.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/hashstructure/v2"
	"gopkg.in/yaml.v3"

	"github.com/tturner/doip/internal/apperrors"
)

// ServerConfig is the root YAML document for `doip server --config path`.
type ServerConfig struct {
	Identity IdentityConfig `yaml:"identity"`
	Listen   ListenConfig   `yaml:"listen"`
	Announce AnnounceConfig `yaml:"announce,omitempty"`
	Timers   TimerConfig    `yaml:"timers,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
}

// IdentityConfig carries the values advertised in VehicleIdentificationResponse
// and vehicle-announcement messages.
type IdentityConfig struct {
	VIN                   string `yaml:"vin"`
	LogicalAddress        uint16 `yaml:"logical_address"`
	EID                   string `yaml:"eid,omitempty"`
	GID                   string `yaml:"gid,omitempty"`
	FurtherActionRequired bool   `yaml:"further_action_required,omitempty"`
}

// ListenConfig controls the bound sockets.
type ListenConfig struct {
	IP             string `yaml:"ip,omitempty"`
	TCPPort        int    `yaml:"tcp_port,omitempty"`
	UDPPort        int    `yaml:"udp_port,omitempty"`
	MaxMessageSize uint32 `yaml:"max_message_size,omitempty"`
}

// AnnounceConfig controls the vehicle-announcement burst sent on startup.
type AnnounceConfig struct {
	Count       int  `yaml:"count,omitempty"`
	IntervalMs  int  `yaml:"interval_ms,omitempty"`
	Loopback    bool `yaml:"loopback,omitempty"`
}

// TimerConfig overrides the FSM's default timer durations (spec.md §3 Timer Entry).
type TimerConfig struct {
	InitialInactivityMs  int `yaml:"initial_inactivity_ms,omitempty"`
	GeneralInactivityMs  int `yaml:"general_inactivity_ms,omitempty"`
	AliveCheckMs         int `yaml:"alive_check_ms,omitempty"`
	MaxAliveCheckRetries int `yaml:"max_alive_check_retries,omitempty"`
	DownstreamMs         int `yaml:"downstream_timeout_ms,omitempty"`
}

// LoggingConfig selects verbosity and an optional file sink.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"`
	File  string `yaml:"file,omitempty"`
}

// ClientConfig is the root YAML document read by LoadClientConfig. The
// `doip client` commands take individual flags and do not read it.
type ClientConfig struct {
	Target         TargetConfig  `yaml:"target"`
	SourceAddress  uint16        `yaml:"source_address,omitempty"`
	Discovery      DiscoveryOpts `yaml:"discovery,omitempty"`
	Logging        LoggingConfig `yaml:"logging,omitempty"`
}

// TargetConfig names the DoIP entity a client connects to.
type TargetConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

// DiscoveryOpts controls a client's `discover` run.
type DiscoveryOpts struct {
	TimeoutMs int  `yaml:"timeout_ms,omitempty"`
	Loopback  bool `yaml:"loopback,omitempty"`
	Port      int  `yaml:"port,omitempty"`
}

// LoadServerConfig reads, defaults, and validates a server config file.
func LoadServerConfig(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.WrapConfigError(fmt.Errorf("config file not found: %s", path), path)
		}
		return nil, apperrors.WrapConfigError(fmt.Errorf("read config file: %w", err), path)
	}

	var cfg ServerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, apperrors.WrapConfigError(fmt.Errorf("parse YAML: %w", err), path)
	}

	applyServerDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, apperrors.WrapConfigError(err, path)
	}
	return &cfg, nil
}

// LoadClientConfig reads, defaults, and validates a client config file.
func LoadClientConfig(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.WrapConfigError(fmt.Errorf("config file not found: %s", path), path)
		}
		return nil, apperrors.WrapConfigError(fmt.Errorf("read config file: %w", err), path)
	}

	var cfg ClientConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, apperrors.WrapConfigError(fmt.Errorf("parse YAML: %w", err), path)
	}

	applyClientDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, apperrors.WrapConfigError(err, path)
	}
	return &cfg, nil
}

// FillDefaults applies the same zero-value defaults LoadServerConfig
// applies after yaml.Unmarshal. Exposed for callers (the config wizard)
// that build a ServerConfig in memory rather than reading it from disk.
func (cfg *ServerConfig) FillDefaults() {
	applyServerDefaults(cfg)
}

// FillDefaults applies the same zero-value defaults LoadClientConfig
// applies after yaml.Unmarshal.
func (cfg *ClientConfig) FillDefaults() {
	applyClientDefaults(cfg)
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Listen.IP == "" {
		cfg.Listen.IP = "0.0.0.0"
	}
	if cfg.Listen.TCPPort == 0 {
		cfg.Listen.TCPPort = 13400
	}
	if cfg.Listen.UDPPort == 0 {
		cfg.Listen.UDPPort = 13400
	}
	if cfg.Listen.MaxMessageSize == 0 {
		cfg.Listen.MaxMessageSize = 16 * 1024 * 1024
	}
	if cfg.Announce.Count == 0 {
		cfg.Announce.Count = 3
	}
	if cfg.Announce.IntervalMs == 0 {
		cfg.Announce.IntervalMs = 500
	}
	if cfg.Timers.InitialInactivityMs == 0 {
		cfg.Timers.InitialInactivityMs = 2000
	}
	if cfg.Timers.GeneralInactivityMs == 0 {
		cfg.Timers.GeneralInactivityMs = 300000
	}
	if cfg.Timers.AliveCheckMs == 0 {
		cfg.Timers.AliveCheckMs = 500
	}
	if cfg.Timers.MaxAliveCheckRetries == 0 {
		cfg.Timers.MaxAliveCheckRetries = 3
	}
	if cfg.Timers.DownstreamMs == 0 {
		cfg.Timers.DownstreamMs = 2000
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func applyClientDefaults(cfg *ClientConfig) {
	if cfg.Target.Port == 0 {
		cfg.Target.Port = 13400
	}
	if cfg.SourceAddress == 0 {
		cfg.SourceAddress = 0xE000
	}
	if cfg.Discovery.TimeoutMs == 0 {
		cfg.Discovery.TimeoutMs = 2000
	}
	if cfg.Discovery.Port == 0 {
		cfg.Discovery.Port = 13400
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate enforces the range and format constraints spec.md §6 and §3
// (VIN length, EID/GID byte lengths, ports, announce and timer values,
// log level) place on config.
func (cfg *ServerConfig) Validate() error {
	if len(cfg.Identity.VIN) > 17 {
		return fmt.Errorf("identity.vin must be at most 17 characters, got %d", len(cfg.Identity.VIN))
	}
	if n := len(parseHexID(cfg.Identity.EID)); n > 6 {
		return fmt.Errorf("identity.eid must be at most 6 bytes, got %d", n)
	}
	if n := len(parseHexID(cfg.Identity.GID)); n > 6 {
		return fmt.Errorf("identity.gid must be at most 6 bytes, got %d", n)
	}
	if err := validatePort(cfg.Listen.TCPPort, "listen.tcp_port"); err != nil {
		return err
	}
	if err := validatePort(cfg.Listen.UDPPort, "listen.udp_port"); err != nil {
		return err
	}
	if cfg.Announce.Count <= 0 {
		return fmt.Errorf("announce.count must be > 0")
	}
	if cfg.Announce.IntervalMs <= 0 {
		return fmt.Errorf("announce.interval_ms must be > 0")
	}
	if cfg.Timers.InitialInactivityMs <= 0 || cfg.Timers.GeneralInactivityMs <= 0 ||
		cfg.Timers.AliveCheckMs <= 0 || cfg.Timers.DownstreamMs <= 0 {
		return fmt.Errorf("all timers.*_ms values must be > 0")
	}
	if cfg.Timers.MaxAliveCheckRetries <= 0 {
		return fmt.Errorf("timers.max_alive_check_retries must be > 0")
	}
	if err := validateLevel(cfg.Logging.Level); err != nil {
		return err
	}
	return nil
}

// Validate enforces the same format constraints on a client config.
func (cfg *ClientConfig) Validate() error {
	if err := validatePort(cfg.Target.Port, "target.port"); err != nil {
		return err
	}
	if cfg.SourceAddress < 0xE000 || cfg.SourceAddress > 0xE3FF {
		return fmt.Errorf("source_address must be in [0xE000, 0xE3FF], got 0x%04X", cfg.SourceAddress)
	}
	if cfg.Discovery.TimeoutMs <= 0 {
		return fmt.Errorf("discovery.timeout_ms must be > 0")
	}
	if err := validatePort(cfg.Discovery.Port, "discovery.port"); err != nil {
		return err
	}
	if err := validateLevel(cfg.Logging.Level); err != nil {
		return err
	}
	return nil
}

func validatePort(port int, field string) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%s must be in [1, 65535], got %d", field, port)
	}
	return nil
}

func validateLevel(level string) error {
	switch level {
	case "", "silent", "error", "info", "verbose", "debug":
		return nil
	default:
		return fmt.Errorf("logging.level must be one of silent/error/info/verbose/debug, got %q", level)
	}
}

// InitialInactivity returns the configured duration, for fsm.Config conversion.
func (cfg TimerConfig) InitialInactivity() time.Duration {
	return time.Duration(cfg.InitialInactivityMs) * time.Millisecond
}

// GeneralInactivity returns the configured duration, for fsm.Config conversion.
func (cfg TimerConfig) GeneralInactivity() time.Duration {
	return time.Duration(cfg.GeneralInactivityMs) * time.Millisecond
}

// AliveCheck returns the configured duration, for fsm.Config conversion.
func (cfg TimerConfig) AliveCheck() time.Duration {
	return time.Duration(cfg.AliveCheckMs) * time.Millisecond
}

// Downstream returns the configured duration, for fsm.Config conversion.
func (cfg TimerConfig) Downstream() time.Duration {
	return time.Duration(cfg.DownstreamMs) * time.Millisecond
}

// Interval returns the configured announce interval as a time.Duration.
func (cfg AnnounceConfig) Interval() time.Duration {
	return time.Duration(cfg.IntervalMs) * time.Millisecond
}

// Hash returns a stable hash of the config tree, so two loads of a config
// file can be compared for changes. No CLI command calls it.
func (cfg *ServerConfig) Hash() (uint64, error) {
	return hashstructure.Hash(cfg, hashstructure.FormatV2, nil)
}

// Hash returns a stable hash of the client config tree.
func (cfg *ClientConfig) Hash() (uint64, error) {
	return hashstructure.Hash(cfg, hashstructure.FormatV2, nil)
}
