// Package main provides the CLI entry point for echoping.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/postalsys/echoping/internal/config"
	"github.com/postalsys/echoping/internal/health"
	"github.com/postalsys/echoping/internal/icmp"
	"github.com/postalsys/echoping/internal/logging"
	"github.com/postalsys/echoping/internal/metrics"
	"github.com/postalsys/echoping/internal/report"
)

var (
	// Version is set at build time
	Version = "dev"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type options struct {
	configPath  string
	logLevel    string
	logFormat   string
	metricsFile string
}

func rootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "echoping <ip/hostname>",
		Short: "Send ICMP echo requests to a host",
		Long: `echoping sends a fixed number of ICMP echo requests to the first IPv4
address of a host over a raw socket and prints every request and reply.

Raw sockets need root or CAP_NET_RAW:

  sudo setcap cap_net_raw+ep ./echoping`,
		Version:      Version,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, opts, args[0], cmd.OutOrStdout(), nil)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.Flags().StringVar(&opts.logFormat, "log-format", "", "Log format: text, json")
	cmd.Flags().StringVar(&opts.metricsFile, "metrics-file", "", "Write session metrics in Prometheus text format to this file")

	return cmd
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(opts options) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		cfg, err = config.Load(opts.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Log.Format = opts.logFormat
	}
	if opts.metricsFile != "" {
		cfg.Metrics.File = opts.metricsFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// run resolves host and runs one echo session against it. A nil open uses
// raw sockets.
func run(ctx context.Context, opts options, host string, out io.Writer, open icmp.OpenFunc) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)

	pingCfg, err := cfg.ICMP()
	if err != nil {
		return err
	}

	dst, err := icmp.ResolveIPv4(ctx, nil, host)
	if err != nil {
		return fmt.Errorf("error resolving address %q: %w", host, err)
	}

	printer := report.NewPrinter(out, report.IsTerminal(out))
	printer.Resolved(dst)

	reg := prometheus.NewRegistry()
	m := metrics.NewMetricsWithRegistry(reg)

	if cfg.Metrics.Address != "" {
		srvCfg := health.DefaultServerConfig()
		srvCfg.Address = cfg.Metrics.Address
		srv := health.NewServer(srvCfg, printer, reg, logger)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer srv.Stop()
	}

	pinger := icmp.NewPinger(pingCfg, open, printer, m, logger)
	pingErr := pinger.Ping(ctx, dst)
	printer.Finish()

	if cfg.Metrics.File != "" {
		if err := writeMetricsFile(cfg.Metrics.File, reg); err != nil {
			if pingErr == nil {
				return err
			}
			logger.Error("failed to write metrics file",
				slog.String(logging.KeyError, err.Error()))
		}
	}

	if pingErr != nil {
		return fmt.Errorf("an error occurred during ICMP request to %s: %w", dst, pingErr)
	}
	return nil
}

func writeMetricsFile(path string, g prometheus.Gatherer) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create metrics file: %w", err)
	}

	if err := metrics.WriteText(f, g); err != nil {
		f.Close()
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return f.Close()
}
