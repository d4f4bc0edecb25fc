package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/arpfuzzer/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the config file and print the effective configuration",
	Long: `Load the config file with defaults, environment overrides and flags applied,
validate it and print the result as YAML.

Examples:
  arpfuzzer validate -c /etc/arpfuzzer/arpfuzzer.yml
  ARPFUZZER_CAPTURE_POLL_TIMEOUT=1s arpfuzzer validate`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
			os.Exit(1)
		}
		if err := runValidate(cfg, os.Stdout); err != nil {
			exitWithError("failed to print config", err)
		}
	},
}

func runValidate(cfg *config.Config, w io.Writer) error {
	engine, err := cfg.Filters()
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]*config.Config{"arpfuzzer": cfg}); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "# VALID: interface %s, filter %s\n", cfg.Interface, engine)
	return err
}
