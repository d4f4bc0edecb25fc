package daemon

import (
	"fmt"
	"log/slog"

	"firestige.xyz/arpfuzzer/internal/config"
	"firestige.xyz/arpfuzzer/internal/core"
	"firestige.xyz/arpfuzzer/internal/fuzzer"
	"firestige.xyz/arpfuzzer/internal/link"
)

// LinkOpener opens the link socket described by cfg.
type LinkOpener func(cfg *config.Config) (fuzzer.Link, error)

// OpenLink binds a raw link socket to cfg.Interface.
func OpenLink(cfg *config.Config) (fuzzer.Link, error) {
	var opts []link.Option
	if cfg.Capture.ARPOnly {
		opts = append(opts, link.WithARPOnly())
	}
	if cfg.Capture.Promiscuous {
		opts = append(opts, link.WithPromiscuous())
	}
	s, err := link.Open(cfg.Interface, opts...)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewFuzzer opens the link with open (OpenLink when nil) and builds a fuzzer
// holding the configured frame template and filters. Capture is not started.
func NewFuzzer(cfg *config.Config, open LinkOpener) (*fuzzer.Fuzzer, error) {
	if open == nil {
		open = OpenLink
	}
	engine, err := cfg.Filters()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrConfigInvalid, err)
	}

	frame := frameTemplate(cfg)

	l, err := open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open link %s: %w", cfg.Interface, err)
	}

	f, err := fuzzer.New(fuzzer.Config{
		Interface:   cfg.Interface,
		Link:        l,
		Frame:       frame,
		Filter:      engine,
		Notify:      cfg.NotifyOptions(),
		PollTimeout: cfg.Capture.PollTimeout,
	})
	if err != nil {
		l.Close()
		return nil, err
	}

	slog.Info("fuzzer ready",
		"interface", cfg.Interface,
		"sender_mac", frame.SenderMAC().String(),
		"sender_ip", frame.SenderIP().String(),
		"target_ip", frame.TargetIP().String(),
		"filter", engine.String(),
	)
	return f, nil
}

// frameTemplate builds the configured frame, filling unset addresses from the interface.
func frameTemplate(cfg *config.Config) core.Frame {
	var (
		localMAC core.HardwareAddr
		localIP  core.IPv4
	)
	if cfg.Frame.NeedsLocalAddrs() {
		var err error
		localMAC, localIP, err = link.LocalAddrs(cfg.Interface)
		if err != nil {
			slog.Warn("cannot resolve interface addresses, unset frame addresses stay zero",
				"interface", cfg.Interface, "error", err)
		}
	}
	return cfg.Frame.FrameTemplate(localMAC, localIP)
}
