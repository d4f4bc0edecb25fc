package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/arpfuzzer/internal/config"
	"firestige.xyz/arpfuzzer/internal/core"
	"firestige.xyz/arpfuzzer/internal/daemon"
	"firestige.xyz/arpfuzzer/internal/dump"
	"firestige.xyz/arpfuzzer/internal/fuzzer"
	logpkg "firestige.xyz/arpfuzzer/internal/log"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send the configured ARP frame",
	Long: `Send the frame described by the config file's frame section.

With capture.enabled the capture pipeline runs alongside the sends, so replies
are queued and announced on the notification socket. Capture stops one poll
interval after the last frame, and every captured frame is printed.

Examples:
  arpfuzzer send -i eth0
  arpfuzzer send -r 10 --interval 100ms
  arpfuzzer send --set opcode=2 --set target-ip=10.0.0.1`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			exitWithError("failed to load config", err)
		}
		if cmd.Flags().Changed("repeat") {
			cfg.Send.Count = sendRepeat
		}
		if cmd.Flags().Changed("interval") {
			cfg.Send.Interval = sendInterval
		}
		if err := logpkg.Init(cfg.Log); err != nil {
			exitWithError("failed to initialize logging", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		f, err := daemon.NewFuzzer(cfg, nil)
		if err != nil {
			exitWithError("failed to open interface", err)
		}
		err = runSend(ctx, f, cfg, sendOverrides, os.Stdout)
		closeFuzzer(f)
		if err != nil {
			exitWithError("send failed", err)
		}
	},
}

var (
	sendRepeat    int
	sendInterval  time.Duration
	sendOverrides []string
)

func init() {
	sendCmd.Flags().IntVarP(&sendRepeat, "repeat", "r", 1, "number of frames to send")
	sendCmd.Flags().DurationVar(&sendInterval, "interval", 0, "pause between frames")
	sendCmd.Flags().StringArrayVar(&sendOverrides, "set", nil, "override a frame field, field=value (repeatable)")
}

// closeFuzzer releases the link and logs a failed close.
func closeFuzzer(f *fuzzer.Fuzzer) {
	if err := f.Close(); err != nil {
		slog.Error("failed to close link", "interface", f.Interface(), "error", err)
	}
}

// runSend applies overrides, sends cfg.Send.Count frames and prints what was captured.
func runSend(ctx context.Context, f *fuzzer.Fuzzer, cfg *config.Config, overrides []string, w io.Writer) error {
	// --repeat and --interval bypass config validation.
	if cfg.Send.Count < 1 {
		return fmt.Errorf("%w: repeat count %d must be at least 1", core.ErrConfigInvalid, cfg.Send.Count)
	}
	if cfg.Send.Interval < 0 {
		return fmt.Errorf("%w: interval %s must not be negative", core.ErrConfigInvalid, cfg.Send.Interval)
	}

	for _, kv := range overrides {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return fmt.Errorf("%w: override %q is not field=value", core.ErrInvalidValue, kv)
		}
		if err := f.SetByName(name, value); err != nil {
			return err
		}
	}

	if cfg.Capture.Enabled {
		if err := f.StartCapture(); err != nil {
			return err
		}
	}

	sent, err := f.SendRepeat(ctx, cfg.Send.Count, cfg.Send.Interval)
	fmt.Fprintf(w, "sent %d/%d frame(s) on %s\n", sent, cfg.Send.Count, f.Interface())
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if !cfg.Capture.Enabled {
		return nil
	}

	// Give replies one poll interval to arrive.
	select {
	case <-ctx.Done():
	case <-f.CaptureDone():
	case <-time.After(cfg.Capture.PollTimeout):
	}
	if err := f.StopCapture(); err != nil {
		return fmt.Errorf("capture: %w", err)
	}

	printer := dump.NewPrinter(w, false)
	captured := 0
	for {
		item, err := f.Pop()
		if errors.Is(err, core.ErrQueueEmpty) {
			break
		}
		if err := printer.Print(item); err != nil {
			return err
		}
		captured++
	}
	st := f.CaptureStatus()
	fmt.Fprintf(w, "captured %d frame(s), %d received, %d filtered, %d short\n",
		captured, st.Stats.Received, st.Stats.Filtered, st.Stats.Short)
	return nil
}
