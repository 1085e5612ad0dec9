// Command tdmanode runs a single mesh node: it parses its identity
// off the command line, loads the optional YAML configuration for
// everything the identity doesn't cover, and drives the transmit,
// receive, and housekeeping loops until asked to stop.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/up202104595/tdmamesh/internal/bootstrap"
	"github.com/up202104595/tdmamesh/internal/config"
	"github.com/up202104595/tdmamesh/internal/kernelroute"
	"github.com/up202104595/tdmamesh/internal/liveness"
	"github.com/up202104595/tdmamesh/internal/logger"
	zapfactory "github.com/up202104595/tdmamesh/internal/logger/zap"
	"github.com/up202104595/tdmamesh/internal/metrics"
	"github.com/up202104595/tdmamesh/internal/routing"
	"github.com/up202104595/tdmamesh/internal/slotsync"
	"github.com/up202104595/tdmamesh/internal/streaming"
	"github.com/up202104595/tdmamesh/internal/supervisor"
	"github.com/up202104595/tdmamesh/internal/telemetry"
	"github.com/up202104595/tdmamesh/internal/topology"
	"github.com/up202104595/tdmamesh/internal/transport"
)

var defaultConfigPath = ""

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [flags] <node_id> <total_nodes> <strategy>\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  node_id      this node's id, 1..total_nodes\n")
	fmt.Fprintf(os.Stderr, "  total_nodes  size of the mesh, 2..20\n")
	fmt.Fprintf(os.Stderr, "  strategy     0=dijkstra 1=mst 2=hybrid\n\n")
	pflag.PrintDefaults()
}

func main() {
	configPath := pflag.String("config", defaultConfigPath, "path to configuration file")
	pflag.Usage = usage
	pflag.Parse()

	if pflag.NArg() != 3 {
		usage()
		os.Exit(2)
	}

	nodeID, err := strconv.Atoi(pflag.Arg(0))
	if err != nil {
		log.Fatalf("invalid node_id %q: %v", pflag.Arg(0), err)
	}
	totalNodes, err := strconv.Atoi(pflag.Arg(1))
	if err != nil {
		log.Fatalf("invalid total_nodes %q: %v", pflag.Arg(1), err)
	}
	strategy, err := strconv.Atoi(pflag.Arg(2))
	if err != nil {
		log.Fatalf("invalid strategy %q: %v", pflag.Arg(2), err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %q: %v", *configPath, err)
	}
	cfg.Node.Id = nodeID
	cfg.Node.TotalNodes = totalNodes
	cfg.Node.Strategy = strategy
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	var lgr logger.Logger
	if cfg.Logger.Active {
		zapLog, err := zapfactory.New(cfg.Logger)
		if err != nil {
			log.Fatalf("failed to initialize logger: %v", err)
		}
		defer func() { _ = zapLog.Sync() }()
		lgr = zapfactory.NewZapAdapter(zapLog)
	} else {
		lgr = &logger.NopLogger{}
	}
	lgr = lgr.Named("tdmanode").With(logger.F("node_id", cfg.Node.Id))
	cfg.LogConfig(lgr)

	shutdown := telemetry.InitTracer(cfg.Telemetry, "tdmamesh-node", uint8(cfg.Node.Id))
	defer func() { _ = shutdown(context.Background()) }()

	var metricsReg *metrics.Registry
	var routingOpts []routing.Option
	var slotOpts []slotsync.Option
	if cfg.Metrics.Enabled {
		metricsReg = metrics.New(lgr.Named("metrics"))
		if err := metricsReg.Serve(cfg.Metrics.Addr); err != nil {
			lgr.Error("failed to start metrics server", logger.F("err", err))
			os.Exit(1)
		}
		routingOpts = append(routingOpts, routing.WithMetrics(routing.NewMetrics(metricsReg.Registerer())))
		slotOpts = append(slotOpts, slotsync.WithMetrics(slotsync.NewMetrics(metricsReg.Registerer())))
	}

	addrs := transport.NewAddressBook(cfg.Node.IPPrefix, cfg.Node.UDPPortBase)
	tr, err := transport.NewUDPTransport(uint8(cfg.Node.Id), addrs, lgr.Named("transport"))
	if err != nil {
		lgr.Error("failed to open UDP transport", logger.F("err", err))
		os.Exit(1)
	}

	if cfg.Node.TotalNodes > 1 {
		probePeer := uint8(cfg.Node.Id%cfg.Node.TotalNodes + 1)
		if err := transport.WaitUntilReady(tr, probePeer, cfg.Liveness.NetworkReadyTries, cfg.Liveness.NetworkReadyDelay, lgr); err != nil {
			lgr.Warn("network readiness probe did not succeed, proceeding anyway", logger.F("err", err))
		}
	}

	cm := topology.NewRegistry(lgr.Named("topology"))
	rm := routing.NewManager(uint8(cfg.Node.Id), routing.Strategy(cfg.Node.Strategy),
		append(routingOpts, routing.WithLogger(lgr.Named("routing")))...)

	nodeIDs := make([]uint8, cfg.Node.TotalNodes)
	for i := range nodeIDs {
		nodeIDs[i] = uint8(i + 1)
	}
	ss := slotsync.New(uint8(cfg.Node.Id), nodeIDs,
		append(slotOpts,
			slotsync.WithLogger(lgr.Named("slotsync")),
			slotsync.WithRoundPeriodUs(cfg.TDMA.RoundPeriodUs),
			slotsync.WithMaxSlotShiftMs(cfg.TDMA.MaxSlotShiftMs),
		)...)

	live := liveness.NewTable(lgr.Named("liveness"))

	var installer kernelroute.Installer
	if cfg.KernelRoute.Enabled {
		installer = kernelroute.NewIPRouteInstaller(cfg.KernelRoute.Interface, lgr.Named("kernelroute"))
	} else {
		installer = kernelroute.NoopInstaller{}
	}

	sender := streaming.NewSender(uint8(cfg.Node.Id), tr, lgr.Named("streaming.sender"))
	reassembler := streaming.NewReassembler(lgr.Named("streaming.reassembler"))

	sup := supervisor.New(
		supervisor.Config{
			MyID:          uint8(cfg.Node.Id),
			TotalNodes:    cfg.Node.TotalNodes,
			TimeoutMs:     cfg.Liveness.TimeoutMs,
			SweepInterval: cfg.Liveness.SweepInterval,
		},
		cm, rm, ss, live, tr, installer, sender, reassembler, lgr.Named("supervisor"),
	)

	resolver, err := bootstrap.NewResolver(cfg.Bootstrap)
	if err != nil {
		lgr.Error("failed to build bootstrap resolver", logger.F("err", err))
		os.Exit(1)
	}
	if err := sup.Bootstrap(resolver); err != nil {
		lgr.Error("bootstrap failed", logger.F("err", err))
		os.Exit(1)
	}
	lgr.Info("bootstrap complete", logger.F("mode", cfg.Bootstrap.Mode))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	runErr := make(chan error, 1)
	go func() { runErr <- sup.Run(ctx) }()
	lgr.Info("node running")

	if cfg.Routing.TimingCSVPath != "" {
		go exportTimingPeriodically(ctx, rm, cfg.Routing.TimingCSVPath, lgr)
	}

	select {
	case <-ctx.Done():
		lgr.Info("shutdown signal received, stopping gracefully...")
		stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		done := make(chan struct{})
		go func() {
			<-runErr
			close(done)
		}()
		select {
		case <-done:
			lgr.Info("supervisor loops stopped")
		case <-shutdownCtx.Done():
			lgr.Warn("graceful stop timed out, forcing shutdown")
		}

		if err := sup.Shutdown(context.Background()); err != nil {
			lgr.Warn("error during shutdown", logger.F("err", err))
		}
		if metricsReg != nil {
			_ = metricsReg.Shutdown(context.Background())
		}

	case err := <-runErr:
		lgr.Error("supervisor terminated unexpectedly", logger.F("err", err))
		stop()
		_ = sup.Shutdown(context.Background())
		os.Exit(1)
	}
}

// exportTimingPeriodically writes the routing manager's timing CSV
// once a second until ctx is cancelled, matching spec.md §6's
// optional timing export.
func exportTimingPeriodically(ctx context.Context, rm *routing.Manager, path string, lgr logger.Logger) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rm.ExportTimingCSV(path); err != nil {
				lgr.Warn("timing CSV export failed", logger.F("err", err))
			}
		}
	}
}
