// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/arpfuzzer/internal/config"
)

const defaultConfigFile = "./arpfuzzer.yml"

var (
	// Global flags
	configFile    string
	interfaceName string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "arpfuzzer",
	Short: "arpfuzzer - ARP frame crafter, sender and capturer",
	Long: `arpfuzzer builds arbitrary (including malformed) ARP frames field by field,
sends them on a raw link-layer socket and captures ARP traffic on the same interface.

Modes:
  - send:   transmit the configured frame, optionally capturing replies
  - watch:  passively print ARP frames that match the configured filters
  - serve:  run as a daemon controlled over a Unix domain socket
  - ctl:    talk to a running daemon`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", defaultConfigFile,
		"config file path")
	rootCmd.PersistentFlags().StringVarP(&interfaceName, "interface", "i", "",
		"network interface, overrides the config file")

	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ctlCmd)
	rootCmd.AddCommand(validateCmd)
}

// loadConfig loads the config file and applies command-line overrides.
// A missing default config file falls back to built-in defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	_, statErr := os.Stat(configFile)
	if errors.Is(statErr, os.ErrNotExist) && !cmd.Flags().Changed("config") {
		cfg, err = config.Default()
	} else {
		cfg, err = config.Load(configFile)
	}
	if err != nil {
		return nil, err
	}

	if interfaceName != "" {
		cfg.Interface = interfaceName
	}
	return cfg, nil
}

// configPath returns the config file actually in use, or "" for built-in defaults.
func configPath() string {
	if _, err := os.Stat(configFile); err != nil {
		return ""
	}
	return configFile
}

// exitWithError prints error message and exits with code 1
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
