package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/tapstack/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load a configuration file, apply defaults and environment overrides,
and check it without opening any device.

Examples:
  tapstack validate -c tapstack.yml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(configFile, cmd.OutOrStdout())
	},
}

func runValidate(path string, w io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}

	fmt.Fprintf(w, "VALID: %s (%s) on %s, %d echo port(s)\n",
		cfg.Stack.Addr, cfg.Stack.HWAddr, cfg.Interface.Name, len(cfg.Stack.EchoSet))
	return nil
}
