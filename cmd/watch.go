package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/arpfuzzer/internal/core"
	"firestige.xyz/arpfuzzer/internal/daemon"
	"firestige.xyz/arpfuzzer/internal/dump"
	"firestige.xyz/arpfuzzer/internal/fuzzer"
	logpkg "firestige.xyz/arpfuzzer/internal/log"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print captured ARP frames until interrupted",
	Long: `Run the capture pipeline with the configured filters and print every
accepted frame. Queue depth notifications are still published when notify.enabled
is set. Stops on SIGINT/SIGTERM or when the pipeline fails.

Examples:
  arpfuzzer watch -i eth0
  arpfuzzer watch --hex`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			exitWithError("failed to load config", err)
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
		err = runWatch(ctx, f, dump.NewPrinter(os.Stdout, watchHex), watchDrainInterval)
		closeFuzzer(f)
		if err != nil {
			exitWithError("capture failed", err)
		}
	},
}

const watchDrainInterval = 50 * time.Millisecond

var watchHex bool

func init() {
	watchCmd.Flags().BoolVar(&watchHex, "hex", false, "append a hexdump of every frame")
}

// runWatch starts capture and prints queued frames until ctx is done or the
// pipeline stops. It returns the pipeline's terminal error.
func runWatch(ctx context.Context, f *fuzzer.Fuzzer, printer *dump.Printer, every time.Duration) error {
	if err := f.StartCapture(); err != nil {
		return err
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			err := f.StopCapture()
			if drainErr := drain(f, printer); drainErr != nil {
				return drainErr
			}
			return err
		case <-f.CaptureDone():
			if err := drain(f, printer); err != nil {
				return err
			}
			return f.StopCapture()
		case <-ticker.C:
			if err := drain(f, printer); err != nil {
				return err
			}
		}
	}
}

func drain(f *fuzzer.Fuzzer, printer *dump.Printer) error {
	for {
		item, err := f.Pop()
		if errors.Is(err, core.ErrQueueEmpty) {
			return nil
		}
		if err := printer.Print(item); err != nil {
			return fmt.Errorf("print frame %d: %w", item.Seq, err)
		}
	}
}
