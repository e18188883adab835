// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/tapstack/internal/core"
	"firestige.xyz/tapstack/internal/core/codec"
)

// GlobalConfig represents the top-level configuration.
// Maps to the `tapstack:` root key in YAML.
type GlobalConfig struct {
	Interface InterfaceConfig `mapstructure:"interface" yaml:"interface"`
	Stack     StackConfig     `mapstructure:"stack" yaml:"stack"`
	ARP       ARPConfig       `mapstructure:"arp" yaml:"arp"`
	Capture   CaptureConfig   `mapstructure:"capture" yaml:"capture"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

// ─── Interface ───

// InterfaceConfig describes the TAP device and its host-side setup.
type InterfaceConfig struct {
	Name         string `mapstructure:"name" yaml:"name"`
	Address      string `mapstructure:"address" yaml:"address"`     // Host side, CIDR form
	Configure    bool   `mapstructure:"configure" yaml:"configure"` // Assign address and bring link up via netlink
	MTU          int    `mapstructure:"mtu" yaml:"mtu"`
	KernelFilter bool   `mapstructure:"kernel_filter" yaml:"kernel_filter"` // Attach EtherType BPF to the TAP

	Prefix netip.Prefix `mapstructure:"-" yaml:"-"` // Parsed Address
}

// ─── Stack ───

// StackConfig holds the identity of the userspace stack.
type StackConfig struct {
	IP              string `mapstructure:"ip" yaml:"ip"`
	MAC             string `mapstructure:"mac" yaml:"mac"`
	TTL             int    `mapstructure:"ttl" yaml:"ttl"`
	VerifyChecksums bool   `mapstructure:"verify_checksums" yaml:"verify_checksums"`
	UDPEchoPorts    []int  `mapstructure:"udp_echo_ports" yaml:"udp_echo_ports"`

	Addr    netip.Addr `mapstructure:"-" yaml:"-"` // Parsed IP
	HWAddr  codec.MAC  `mapstructure:"-" yaml:"-"` // Parsed MAC
	EchoSet []uint16   `mapstructure:"-" yaml:"-"` // Parsed UDPEchoPorts
}

// ─── ARP ───

// ARPConfig controls neighbor cache lifetime.
type ARPConfig struct {
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	JanitorInterval time.Duration `mapstructure:"janitor_interval" yaml:"janitor_interval"` // 0 = pipeline sweeps only
}

// ─── Capture ───

// CaptureConfig enables the pcap capture tap.
type CaptureConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
	Snaplen int    `mapstructure:"snaplen" yaml:"snaplen"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level" yaml:"level"`     // trace / debug / info / warn / error
	Format  string           `mapstructure:"format" yaml:"format"`   // json / text / pattern
	Pattern string           `mapstructure:"pattern" yaml:"pattern"` // Used by format=pattern
	Time    string           `mapstructure:"time" yaml:"time"`       // Time layout for format=pattern
	Outputs LogOutputsConfig `mapstructure:"outputs" yaml:"outputs"`
}

// LogOutputsConfig contains log output destinations besides stdout.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file" yaml:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Path     string         `mapstructure:"path" yaml:"path"`
	Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `tapstack: ...`.
type configRoot struct {
	Tapstack GlobalConfig `mapstructure:"tapstack"`
}

// Load loads configuration from file. An empty path loads defaults and
// environment overrides only.
// The YAML file uses `tapstack:` as root key; env vars map through the key
// replacer (e.g., key "tapstack.stack.ip" → env "TAPSTACK_STACK_IP").
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Tapstack

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use the "tapstack." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Interface defaults
	v.SetDefault("tapstack.interface.name", "tap0")
	v.SetDefault("tapstack.interface.address", "192.168.10.1/24")
	v.SetDefault("tapstack.interface.configure", true)
	v.SetDefault("tapstack.interface.mtu", 1500)
	v.SetDefault("tapstack.interface.kernel_filter", true)

	// Stack defaults
	v.SetDefault("tapstack.stack.ip", "192.168.10.2")
	v.SetDefault("tapstack.stack.mac", "42:42:42:42:42:42")
	v.SetDefault("tapstack.stack.ttl", int(codec.DefaultTTL))
	v.SetDefault("tapstack.stack.verify_checksums", false)
	v.SetDefault("tapstack.stack.udp_echo_ports", []int{7})

	// ARP defaults
	v.SetDefault("tapstack.arp.timeout", "60s")
	v.SetDefault("tapstack.arp.sweep_interval", "10s")
	v.SetDefault("tapstack.arp.janitor_interval", "0s")

	// Capture defaults
	v.SetDefault("tapstack.capture.enabled", false)
	v.SetDefault("tapstack.capture.path", "/var/lib/tapstack/capture.pcap")
	v.SetDefault("tapstack.capture.snaplen", 65535)

	// Metrics defaults
	v.SetDefault("tapstack.metrics.enabled", true)
	v.SetDefault("tapstack.metrics.listen", ":9092")
	v.SetDefault("tapstack.metrics.path", "/metrics")

	// Log defaults
	v.SetDefault("tapstack.log.level", "info")
	v.SetDefault("tapstack.log.format", "text")
	v.SetDefault("tapstack.log.pattern", "%time [%level] %field %msg\n")
	v.SetDefault("tapstack.log.time", "2006-01-02 15:04:05.000")
	v.SetDefault("tapstack.log.outputs.file.enabled", false)
	v.SetDefault("tapstack.log.outputs.file.path", "/var/log/tapstack/tapstack.log")
	v.SetDefault("tapstack.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("tapstack.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("tapstack.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("tapstack.log.outputs.file.rotation.compress", true)
}

// ValidateAndApplyDefaults validates configuration and fills the parsed
// fields (Prefix, Addr, HWAddr, EchoSet). Every failure wraps
// core.ErrConfigInvalid.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log ──
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return invalid("invalid log level: %s (must be trace/debug/info/warn/error)", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "json", "text":
	case "pattern":
		if cfg.Log.Pattern == "" {
			return invalid("log.pattern is required when log.format=pattern")
		}
	default:
		return invalid("invalid log format: %s (must be json/text/pattern)", cfg.Log.Format)
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return invalid("log.outputs.file.path is required when file output is enabled")
	}

	// ── Stack identity ──
	addr, err := netip.ParseAddr(cfg.Stack.IP)
	if err != nil || !addr.Is4() {
		return invalid("stack.ip must be an IPv4 address: %q", cfg.Stack.IP)
	}
	cfg.Stack.Addr = addr

	mac, err := codec.ParseMAC(cfg.Stack.MAC)
	if err != nil {
		return invalid("stack.mac: %v", err)
	}
	if mac == codec.BroadcastMAC || mac[0]&0x01 != 0 {
		return invalid("stack.mac must be a unicast address: %s", cfg.Stack.MAC)
	}
	cfg.Stack.HWAddr = mac

	if cfg.Stack.TTL < 1 || cfg.Stack.TTL > 255 {
		return invalid("stack.ttl out of range: %d (must be 1-255)", cfg.Stack.TTL)
	}

	cfg.Stack.EchoSet = cfg.Stack.EchoSet[:0]
	for _, port := range cfg.Stack.UDPEchoPorts {
		if port < 1 || port > 65535 {
			return invalid("stack.udp_echo_ports: invalid port %d", port)
		}
		cfg.Stack.EchoSet = append(cfg.Stack.EchoSet, uint16(port))
	}

	// ── Interface ──
	if cfg.Interface.Name == "" {
		return invalid("interface.name is required")
	}
	if cfg.Interface.MTU < 68 || cfg.Interface.MTU > 65535 {
		return invalid("interface.mtu out of range: %d", cfg.Interface.MTU)
	}
	if cfg.Interface.Address != "" {
		prefix, err := netip.ParsePrefix(cfg.Interface.Address)
		if err != nil || !prefix.Addr().Is4() {
			return invalid("interface.address must be an IPv4 CIDR: %q", cfg.Interface.Address)
		}
		if prefix.Addr() == addr {
			return invalid("interface.address %s collides with stack.ip", prefix.Addr())
		}
		if !prefix.Contains(addr) {
			return invalid("stack.ip %s is outside interface.address %s", addr, prefix)
		}
		cfg.Interface.Prefix = prefix
	} else if cfg.Interface.Configure {
		return invalid("interface.address is required when interface.configure=true")
	}

	// ── ARP ──
	if cfg.ARP.Timeout <= 0 {
		return invalid("arp.timeout must be positive: %s", cfg.ARP.Timeout)
	}
	if cfg.ARP.SweepInterval <= 0 {
		return invalid("arp.sweep_interval must be positive: %s", cfg.ARP.SweepInterval)
	}
	if cfg.ARP.JanitorInterval < 0 {
		return invalid("arp.janitor_interval must not be negative: %s", cfg.ARP.JanitorInterval)
	}

	// ── Capture ──
	if cfg.Capture.Enabled && cfg.Capture.Path == "" {
		return invalid("capture.path is required when capture.enabled=true")
	}
	if cfg.Capture.Snaplen <= 0 {
		cfg.Capture.Snaplen = 65535
	}

	// ── Metrics ──
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return invalid("metrics.listen is required when metrics.enabled=true")
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{core.ErrConfigInvalid}, args...)...)
}
