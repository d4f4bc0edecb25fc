// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"firestige.xyz/arpfuzzer/internal/core"
	"firestige.xyz/arpfuzzer/internal/filter"
	"firestige.xyz/arpfuzzer/internal/notify"
	"firestige.xyz/arpfuzzer/internal/pipeline"
)

// Config represents the top-level configuration.
// Maps to the `arpfuzzer:` root key in YAML.
type Config struct {
	Interface string         `mapstructure:"interface" yaml:"interface"`
	Frame     FrameConfig    `mapstructure:"frame" yaml:"frame"`
	Filter    map[string]any `mapstructure:"filters" yaml:"filters,omitempty"`
	Capture   CaptureConfig  `mapstructure:"capture" yaml:"capture"`
	Notify    NotifyConfig   `mapstructure:"notify" yaml:"notify"`
	Send      SendConfig     `mapstructure:"send" yaml:"send"`
	Control   ControlConfig  `mapstructure:"control" yaml:"control"`
	Metrics   MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Log       LogConfig      `mapstructure:"log" yaml:"log"`
}

// ─── Frame Template ───

// FrameConfig is the initial frame under construction. Unset addresses are
// resolved from the bound interface by FrameTemplate.
type FrameConfig struct {
	HdrDstMAC    OptionalMAC  `mapstructure:"hdr_dst_mac" yaml:"hdr_dst_mac"`
	HdrSrcMAC    OptionalMAC  `mapstructure:"hdr_src_mac" yaml:"hdr_src_mac"`
	FrameType    uint16       `mapstructure:"frame_type" yaml:"frame_type"`
	HardwareType uint16       `mapstructure:"hardware_type" yaml:"hardware_type"`
	ProtocolType uint16       `mapstructure:"protocol_type" yaml:"protocol_type"`
	HardwareSize uint8        `mapstructure:"hardware_size" yaml:"hardware_size"`
	ProtocolSize uint8        `mapstructure:"protocol_size" yaml:"protocol_size"`
	Opcode       uint16       `mapstructure:"opcode" yaml:"opcode"`
	SenderMAC    OptionalMAC  `mapstructure:"sender_mac" yaml:"sender_mac"`
	SenderIP     OptionalIPv4 `mapstructure:"sender_ip" yaml:"sender_ip"`
	TargetMAC    OptionalMAC  `mapstructure:"target_mac" yaml:"target_mac"`
	TargetIP     OptionalIPv4 `mapstructure:"target_ip" yaml:"target_ip"`
}

// OptionalMAC is a hardware address that may be left empty in the config file.
type OptionalMAC struct {
	Addr  core.HardwareAddr
	Valid bool
}

func (o *OptionalMAC) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		*o = OptionalMAC{}
		return nil
	}
	mac, err := core.ParseMAC(s)
	if err != nil {
		return err
	}
	*o = OptionalMAC{Addr: mac, Valid: true}
	return nil
}

func (o OptionalMAC) MarshalText() ([]byte, error) {
	if !o.Valid {
		return []byte{}, nil
	}
	return o.Addr.MarshalText()
}

func (o OptionalMAC) or(fallback core.HardwareAddr) core.HardwareAddr {
	if o.Valid {
		return o.Addr
	}
	return fallback
}

// OptionalIPv4 is an IPv4 address that may be left empty in the config file.
type OptionalIPv4 struct {
	Addr  core.IPv4
	Valid bool
}

func (o *OptionalIPv4) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		*o = OptionalIPv4{}
		return nil
	}
	ip, err := core.ParseIPv4(s)
	if err != nil {
		return err
	}
	*o = OptionalIPv4{Addr: ip, Valid: true}
	return nil
}

func (o OptionalIPv4) MarshalText() ([]byte, error) {
	if !o.Valid {
		return []byte{}, nil
	}
	return o.Addr.MarshalText()
}

func (o OptionalIPv4) or(fallback core.IPv4) core.IPv4 {
	if o.Valid {
		return o.Addr
	}
	return fallback
}

// ─── Capture & Notification ───

// CaptureConfig configures the capture pipeline.
type CaptureConfig struct {
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
	PollTimeout time.Duration `mapstructure:"poll_timeout" yaml:"poll_timeout"` // Bounded wait per worker iteration
	ARPOnly     bool          `mapstructure:"arp_only" yaml:"arp_only"`         // Attach the kernel ARP filter
	Promiscuous bool          `mapstructure:"promiscuous" yaml:"promiscuous"`
}

// NotifyConfig configures the queue-depth notification client.
type NotifyConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	Socket       string        `mapstructure:"socket" yaml:"socket"`
	Attempts     int           `mapstructure:"attempts" yaml:"attempts"`
	Backoff      time.Duration `mapstructure:"backoff" yaml:"backoff"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// SendConfig configures active mode.
type SendConfig struct {
	Count    int           `mapstructure:"count" yaml:"count"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// ─── Control Plane ───

// ControlConfig contains local control plane settings.
type ControlConfig struct {
	Socket  string `mapstructure:"socket" yaml:"socket"`
	PIDFile string `mapstructure:"pid_file" yaml:"pid_file"` // Empty = no PID file
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
	Level      string           `mapstructure:"level" yaml:"level"`   // debug / info / warn / error
	Format     string           `mapstructure:"format" yaml:"format"` // json / text / pattern
	Pattern    string           `mapstructure:"pattern" yaml:"pattern"`
	TimeFormat string           `mapstructure:"time_format" yaml:"time_format"`
	Outputs    LogOutputsConfig `mapstructure:"outputs" yaml:"outputs"`
}

// LogOutputsConfig contains log output destinations. Stdout is always on.
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
	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`   // MB
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days"` // Days
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `arpfuzzer: ...`.
type configRoot struct {
	ARPFuzzer Config `mapstructure:"arpfuzzer"`
}

// Load loads configuration from file.
// The YAML file uses `arpfuzzer:` as root key; env vars use the ARPFUZZER_ prefix
// (e.g., ARPFUZZER_CAPTURE_POLL_TIMEOUT).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %w", core.ErrConfigInvalid, err)
	}
	return load(v)
}

// Default returns the configuration used when no file is given.
func Default() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	// The `arpfuzzer.` key prefix maps to `ARPFUZZER_` via the key replacer.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal config: %w", core.ErrConfigInvalid, err)
	}
	cfg := root.ARPFuzzer

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	)
}

// setDefaults sets default values for configuration.
// All keys use the "arpfuzzer." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	v.SetDefault("arpfuzzer.interface", "eth0")

	// Frame template; empty addresses are resolved from the interface
	v.SetDefault("arpfuzzer.frame.hdr_dst_mac", "ff:ff:ff:ff:ff:ff")
	v.SetDefault("arpfuzzer.frame.hdr_src_mac", "")
	v.SetDefault("arpfuzzer.frame.frame_type", core.EtherTypeARP)
	v.SetDefault("arpfuzzer.frame.hardware_type", core.HardwareTypeEthernet)
	v.SetDefault("arpfuzzer.frame.protocol_type", core.ProtocolTypeIPv4)
	v.SetDefault("arpfuzzer.frame.hardware_size", 6)
	v.SetDefault("arpfuzzer.frame.protocol_size", 4)
	v.SetDefault("arpfuzzer.frame.opcode", core.OpRequest)
	v.SetDefault("arpfuzzer.frame.sender_mac", "")
	v.SetDefault("arpfuzzer.frame.sender_ip", "")
	v.SetDefault("arpfuzzer.frame.target_mac", "")
	v.SetDefault("arpfuzzer.frame.target_ip", "127.0.0.1")

	// Capture defaults
	v.SetDefault("arpfuzzer.capture.enabled", true)
	v.SetDefault("arpfuzzer.capture.poll_timeout", pipeline.DefaultPollTimeout)
	v.SetDefault("arpfuzzer.capture.arp_only", true)
	v.SetDefault("arpfuzzer.capture.promiscuous", false)

	// Notification defaults
	v.SetDefault("arpfuzzer.notify.enabled", false)
	v.SetDefault("arpfuzzer.notify.socket", notify.DefaultSocket)
	v.SetDefault("arpfuzzer.notify.attempts", notify.DefaultAttempts)
	v.SetDefault("arpfuzzer.notify.backoff", notify.DefaultBackoff)
	v.SetDefault("arpfuzzer.notify.write_timeout", notify.DefaultWriteTimeout)

	// Active mode defaults
	v.SetDefault("arpfuzzer.send.count", 1)
	v.SetDefault("arpfuzzer.send.interval", "0s")

	// Control defaults
	v.SetDefault("arpfuzzer.control.socket", "/var/run/arpfuzzer.sock")
	v.SetDefault("arpfuzzer.control.pid_file", "")

	// Metrics defaults
	v.SetDefault("arpfuzzer.metrics.enabled", false)
	v.SetDefault("arpfuzzer.metrics.listen", ":9092")
	v.SetDefault("arpfuzzer.metrics.path", "/metrics")

	// Log defaults
	v.SetDefault("arpfuzzer.log.level", "info")
	v.SetDefault("arpfuzzer.log.format", "text")
	v.SetDefault("arpfuzzer.log.pattern", "%time [%level] %caller %msg %field%n")
	v.SetDefault("arpfuzzer.log.time_format", "2006-01-02 15:04:05.000")
	v.SetDefault("arpfuzzer.log.outputs.file.enabled", false)
	v.SetDefault("arpfuzzer.log.outputs.file.path", "/var/log/arpfuzzer/arpfuzzer.log")
	v.SetDefault("arpfuzzer.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("arpfuzzer.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("arpfuzzer.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("arpfuzzer.log.outputs.file.rotation.compress", true)
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *Config) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return invalid("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
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

	if cfg.Interface == "" {
		return invalid("interface is required")
	}

	// ── Capture ──
	if cfg.Capture.PollTimeout == 0 {
		cfg.Capture.PollTimeout = pipeline.DefaultPollTimeout
	}
	if cfg.Capture.PollTimeout < 0 || cfg.Capture.PollTimeout > pipeline.MaxPollTimeout {
		return invalid("capture.poll_timeout %s out of range (0, %s]", cfg.Capture.PollTimeout, pipeline.MaxPollTimeout)
	}

	// ── Notification ──
	if cfg.Notify.Enabled {
		if cfg.Notify.Socket == "" {
			return invalid("notify.socket is required when notify.enabled=true")
		}
		if cfg.Notify.Attempts < 1 {
			return invalid("notify.attempts must be at least 1, got %d", cfg.Notify.Attempts)
		}
		if cfg.Notify.Backoff < 0 || cfg.Notify.WriteTimeout < 0 {
			return invalid("notify durations must not be negative")
		}
	}

	// ── Active mode ──
	if cfg.Send.Count < 1 {
		return invalid("send.count must be at least 1, got %d", cfg.Send.Count)
	}
	if cfg.Send.Interval < 0 {
		return invalid("send.interval must not be negative")
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return invalid("metrics.listen is required when metrics.enabled=true")
	}

	// ── Filters ──
	if _, err := cfg.Filters(); err != nil {
		return fmt.Errorf("%w: %w", core.ErrConfigInvalid, err)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{core.ErrConfigInvalid}, args...)...)
}

// Filters builds the capture filter engine from the filters section.
func (cfg *Config) Filters() (*filter.Engine, error) {
	return filter.FromMap(cfg.Filter)
}

// NotifyOptions returns the notification client config, or nil when disabled.
func (cfg *Config) NotifyOptions() *notify.Config {
	if !cfg.Notify.Enabled {
		return nil
	}
	return &notify.Config{
		Socket:       cfg.Notify.Socket,
		Attempts:     cfg.Notify.Attempts,
		Backoff:      cfg.Notify.Backoff,
		WriteTimeout: cfg.Notify.WriteTimeout,
	}
}

// NeedsLocalAddrs reports whether FrameTemplate falls back to interface addresses.
func (fc *FrameConfig) NeedsLocalAddrs() bool {
	return !fc.HdrSrcMAC.Valid || !fc.SenderMAC.Valid || !fc.SenderIP.Valid
}

// FrameTemplate builds the initial frame. Unset source addresses take the
// interface's own addresses, an unset link destination is broadcast and an
// unset target hardware address stays zero.
func (fc *FrameConfig) FrameTemplate(localMAC core.HardwareAddr, localIP core.IPv4) core.Frame {
	f := core.NewFrame()
	f.SetHdrDstMAC(fc.HdrDstMAC.or(core.BroadcastMAC))
	f.SetHdrSrcMAC(fc.HdrSrcMAC.or(localMAC))
	f.SetFrameType(fc.FrameType)
	f.SetHardwareType(fc.HardwareType)
	f.SetProtocolType(fc.ProtocolType)
	f.SetHardwareSize(fc.HardwareSize)
	f.SetProtocolSize(fc.ProtocolSize)
	f.SetOpcode(fc.Opcode)
	f.SetSenderMAC(fc.SenderMAC.or(localMAC))
	f.SetSenderIP(fc.SenderIP.or(localIP))
	f.SetTargetMAC(fc.TargetMAC.or(core.HardwareAddr{}))
	f.SetTargetIP(fc.TargetIP.or(core.IPv4{127, 0, 0, 1}))
	return f
}
