// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"github.com/spf13/cobra"
)

// Global flags
var configFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tapstack",
	Short: "tapstack - userspace ARP/IPv4/ICMP/UDP stack on a TAP interface",
	Long: `tapstack runs a small userspace network stack behind a Linux TAP device.
It answers ARP requests for its address, replies to ICMP echo, delivers UDP
datagrams and echoes them on configured ports.

Frames can also be replayed from a pcap file, which needs no privileges.`,
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
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults and TAPSTACK_* env when empty)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(configCmd)
}
