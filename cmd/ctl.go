package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/arpfuzzer/internal/command"
)

// ControlClient is the part of the control socket client used by ctl.
type ControlClient interface {
	Call(ctx context.Context, method string, params interface{}) (*command.Response, error)
}

var ctlCmd = &cobra.Command{
	Use:   "ctl <command> [args]",
	Short: "Send a command to a running daemon",
	Long: `Send one JSON-RPC command to the daemon's control socket and print the result.

Commands:
  ping                   check the daemon is answering
  get [field]            show one frame field, or the whole frame
  set <field> <value>    set one frame field (all-dst-mac sets both destination MACs)
  send [count]           send the frame count times (default 1)
  filter [field=value]   replace the capture filter (no arguments clears it)
  pop                    remove the oldest captured frame
  size                   number of queued frames
  start | stop | status  control the capture pipeline
  info                   daemon uptime and interface
  shutdown               stop the daemon`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		socket := ctlSocket
		if !cmd.Flags().Changed("socket") {
			if cfg, err := loadConfig(cmd); err == nil {
				socket = cfg.Control.Socket
			}
		}
		client := command.NewUDSClient(socket, ctlTimeout)
		if err := runCtl(context.Background(), client, args, os.Stdout); err != nil {
			exitWithError(args[0]+" failed", err)
		}
	},
}

var (
	ctlSocket   string
	ctlTimeout  time.Duration
	ctlInterval time.Duration
)

func init() {
	ctlCmd.Flags().StringVarP(&ctlSocket, "socket", "s", "/var/run/arpfuzzer.sock", "daemon control socket path")
	ctlCmd.Flags().DurationVar(&ctlTimeout, "timeout", 10*time.Second, "request timeout")
	ctlCmd.Flags().DurationVar(&ctlInterval, "interval", 0, "pause between frames for send")
}

// ctlRequest maps ctl arguments to a JSON-RPC method and params.
func ctlRequest(args []string) (string, interface{}, error) {
	name, rest := args[0], args[1:]
	switch name {
	case "ping":
		return "ping", nil, nil
	case "get":
		if len(rest) > 1 {
			return "", nil, fmt.Errorf("usage: get [field]")
		}
		params := command.FrameGetParams{}
		if len(rest) == 1 {
			params.Field = rest[0]
		}
		return "frame_get", params, nil
	case "set":
		if len(rest) != 2 {
			return "", nil, fmt.Errorf("usage: set <field> <value>")
		}
		return "frame_set", command.FrameSetParams{Field: rest[0], Value: rest[1]}, nil
	case "send":
		params := command.FrameSendParams{Count: 1}
		if len(rest) > 1 {
			return "", nil, fmt.Errorf("usage: send [count]")
		}
		if len(rest) == 1 {
			n, err := strconv.Atoi(rest[0])
			if err != nil || n < 1 {
				return "", nil, fmt.Errorf("invalid count %q", rest[0])
			}
			params.Count = n
		}
		if ctlInterval > 0 {
			params.Interval = ctlInterval.String()
		}
		return "frame_send", params, nil
	case "filter":
		filters := make(map[string]interface{}, len(rest))
		for _, kv := range rest {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				return "", nil, fmt.Errorf("filter %q is not field=value", kv)
			}
			filters[k] = v
		}
		return "filter_set", command.FilterSetParams{Filters: filters}, nil
	case "pop":
		return "queue_pop", nil, nil
	case "size":
		return "queue_size", nil, nil
	case "start":
		return "capture_start", nil, nil
	case "stop":
		return "capture_stop", nil, nil
	case "status":
		return "capture_status", nil, nil
	case "info":
		return "daemon_status", nil, nil
	case "shutdown":
		return "daemon_shutdown", nil, nil
	default:
		return "", nil, fmt.Errorf("unknown command %q", name)
	}
}

// runCtl performs one ctl command and prints the result as indented JSON.
func runCtl(ctx context.Context, client ControlClient, args []string, w io.Writer) error {
	method, params, err := ctlRequest(args)
	if err != nil {
		return err
	}

	resp, err := client.Call(ctx, method, params)
	if err != nil {
		return fmt.Errorf("daemon is not running or socket is inaccessible: %w", err)
	}
	if resp.Error != nil {
		return resp.Error
	}

	resultJSON, err := json.MarshalIndent(resp.Result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format result: %w", err)
	}
	fmt.Fprintln(w, string(resultJSON))
	return nil
}
