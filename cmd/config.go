package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/tapstack/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults and TAPSTACK_* environment
overrides have been applied, in the same YAML layout the config file uses.

Examples:
  tapstack config
  TAPSTACK_STACK_TTL=32 tapstack config -c tapstack.yml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfig(configFile, cmd.OutOrStdout())
	},
}

func runConfig(path string, w io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	if err := enc.Encode(map[string]*config.GlobalConfig{"tapstack": cfg}); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}
