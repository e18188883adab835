package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/tapstack/internal/capture"
	"firestige.xyz/tapstack/internal/config"
	"firestige.xyz/tapstack/internal/device"
	"firestige.xyz/tapstack/internal/log"
	"firestige.xyz/tapstack/internal/metrics"
	"firestige.xyz/tapstack/internal/pipeline"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the stack on a TAP interface in foreground",
	Long: `Run the stack on a TAP interface in foreground.

The command will:
  1. Load configuration from the config file
  2. Initialize logging and metrics
  3. Open the TAP device, assign the host address and bring the link up
  4. Attach the EtherType filter to the device
  5. Answer ARP, ICMP echo and UDP until SIGINT or SIGTERM

Opening a TAP device needs CAP_NET_ADMIN.

Examples:
  tapstack run                      # defaults: tap0, 192.168.10.2 behind 192.168.10.1/24
  tapstack run -c tapstack.yml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if err := log.Init(cfg.Log); err != nil {
			return fmt.Errorf("failed to init logger: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runStack(ctx, cfg)
	},
}

func runStack(ctx context.Context, cfg *config.GlobalConfig) error {
	logger := log.GetLogger().WithField("module", "run")

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer srv.Stop(context.Background())
	}

	tap, err := device.OpenTAP(cfg.Interface.Name)
	if err != nil {
		return err
	}
	// The pipeline closes the device when Run returns; this covers setup failures.
	defer tap.Close()

	if cfg.Interface.Configure {
		if err := device.Configure(tap.Name(), cfg.Interface.Prefix, cfg.Interface.MTU); err != nil {
			return err
		}
		logger.Infof("configured %s with %s", tap.Name(), cfg.Interface.Prefix)
	}

	st := buildStack(cfg)
	defer st.Resolver().Cache().Close()

	builder := pipeline.NewBuilder().
		WithName(tap.Name()).
		WithDevice(tap).
		WithStack(st).
		WithSweepInterval(cfg.ARP.SweepInterval)

	if cfg.Interface.KernelFilter {
		prog, err := device.EtherTypeFilter(device.StackEtherTypes...)
		if err != nil {
			return err
		}
		if err := tap.AttachFilter(prog); err != nil {
			// Not fatal: the stack ignores other EtherTypes anyway.
			logger.WithError(err).Warn("kernel filter not attached")
		}
	}

	if cfg.Capture.Enabled {
		w, err := capture.Create(cfg.Capture.Path, cfg.Capture.Snaplen)
		if err != nil {
			return err
		}
		defer w.Close()
		builder.WithCapture(w)
		logger.Infof("capturing to %s", cfg.Capture.Path)
	}

	logger.Infof("stack up on %s: %s (%s)", tap.Name(), cfg.Stack.Addr, cfg.Stack.HWAddr)
	return builder.Build().Run(ctx)
}
