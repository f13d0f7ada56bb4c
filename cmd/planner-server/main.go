package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"github.com/signalsfoundry/coverage-planner/internal/config"
	"github.com/signalsfoundry/coverage-planner/internal/logging"
	"github.com/signalsfoundry/coverage-planner/internal/nbi"
	"github.com/signalsfoundry/coverage-planner/internal/observability"
)

func main() {
	configPath := flag.String("config", "", "path to planner.yaml")
	grpcAddr := flag.String("grpc-addr", "", "TCP address the planner gRPC server listens on (overrides server.grpc_addr)")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for Prometheus /metrics (overrides server.metrics_addr)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *grpcAddr != "" {
		cfg.Server.GRPCAddr = *grpcAddr
	}
	if *metricsAddr != "" {
		cfg.Server.MetricsAddr = *metricsAddr
	}

	log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, AddSource: true})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.Server.GRPCAddr), logging.Err(err))
		os.Exit(1)
	}

	if err := run(ctx, cfg, log, lis, prometheus.DefaultRegisterer); err != nil {
		log.Error(ctx, "planner server exited", logging.Err(err))
		os.Exit(1)
	}
}

// run serves PlannerService on lis until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, log logging.Logger, lis net.Listener, reg prometheus.Registerer) error {
	collector, err := observability.NewPlannerCollector(reg)
	if err != nil {
		return fmt.Errorf("initialise metrics collector: %w", err)
	}
	metricsSrv := serveMetrics(cfg.Server.MetricsAddr, collector, log)

	st, err := cfg.NewProjectState(log, collector)
	if err != nil {
		return fmt.Errorf("open project: %w", err)
	}
	defer st.Close()
	st.Refresh()

	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			nbi.RequestIDUnaryServerInterceptor(log),
			collector.UnaryServerInterceptor(),
			nbi.TracingUnaryServerInterceptor(),
		),
	)
	nbi.RegisterPlannerServiceServer(server, nbi.NewPlannerService(st, log,
		nbi.WithCompliance(cfg.Compliance.ThresholdDBm, cfg.Compliance.Percentage),
	))

	serveErr := make(chan error, 1)
	log.Info(ctx, "starting planner gRPC server",
		logging.String("addr", lis.Addr().String()),
		logging.Int("antennas", st.Store().AntennaCount()),
	)
	go func() {
		serveErr <- server.Serve(lis)
	}()

	var result error
	select {
	case <-ctx.Done():
		log.Info(context.Background(), "shutting down planner server")
		server.GracefulStop()
	case err := <-serveErr:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			result = fmt.Errorf("grpc serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return result
}

func serveMetrics(addr string, collector *observability.PlannerCollector, log logging.Logger) *http.Server {
	if collector == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
