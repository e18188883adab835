package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/tapstack/internal/config"
	"firestige.xyz/tapstack/internal/device"
	"firestige.xyz/tapstack/internal/log"
	"firestige.xyz/tapstack/internal/pipeline"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Push frames from a pcap file through the stack",
	Long: `Push every frame of a pcap or pcapng file through the stack and
optionally write the stack's replies to a pcap file.

Frames other than ARP and IPv4 are filtered out before the stack sees them,
the same way the kernel filter does on a TAP device.

Examples:
  tapstack replay -i ping.pcap
  tapstack replay -i ping.pcap -o replies.pcap -c tapstack.yml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if err := log.Init(cfg.Log); err != nil {
			return fmt.Errorf("failed to init logger: %w", err)
		}
		return runReplay(cmd.Context(), cfg, replayInput, replayOutput, cmd.OutOrStdout())
	},
}

var (
	replayInput  string
	replayOutput string
)

func init() {
	replayCmd.Flags().StringVarP(&replayInput, "input", "i", "",
		"pcap file to replay (required)")
	replayCmd.Flags().StringVarP(&replayOutput, "output", "o", "",
		"pcap file receiving the replies")
	replayCmd.MarkFlagRequired("input")
}

func runReplay(ctx context.Context, cfg *config.GlobalConfig, in, out string, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var sink io.Writer
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", out, err)
		}
		defer f.Close()
		sink = f
	}

	dev, err := device.OpenReplay(in, sink)
	if err != nil {
		return err
	}

	filter, err := device.NewFilter(device.StackEtherTypes...)
	if err != nil {
		dev.Close()
		return err
	}

	st := buildStack(cfg)
	defer st.Resolver().Cache().Close()

	p := pipeline.NewBuilder().
		WithDevice(dev).
		WithStack(st).
		WithSweepInterval(cfg.ARP.SweepInterval).
		WithFilter(filter).
		Build()
	if err := p.Run(ctx); err != nil {
		return err
	}

	stats := p.Stats()
	fmt.Fprintf(w, "replayed %d frame(s): %d filtered, %d handled, %d rejected, %d repl(ies) sent\n",
		stats.Received, stats.Dropped, stats.Handled, stats.Errors, stats.Sent)
	return nil
}
