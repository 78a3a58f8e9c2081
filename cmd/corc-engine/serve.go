package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rshade/biochar-corc/internal/aggregate"
	"github.com/rshade/biochar-corc/internal/metrics"
	"github.com/rshade/biochar-corc/internal/server"
)

const healthServiceName = "corc-engine"

func newServeCommand(o *rootOptions) *cobra.Command {
	var (
		src        sourceFlags
		listenAddr string
		healthAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and gRPC health service",
		Long: `Serve the HTTP API and a gRPC health service until SIGINT or SIGTERM.

Period routes are available when a data source is configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("listen") {
				o.cfg.Server.ListenAddr = listenAddr
			}
			if cmd.Flags().Changed("health-listen") {
				o.cfg.Server.HealthAddr = healthAddr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, o, &src)
		},
	}

	src.register(cmd)
	cmd.Flags().StringVar(&listenAddr, "listen", "", "HTTP listen address (default from config, :8080)")
	cmd.Flags().StringVar(&healthAddr, "health-listen", "", "gRPC health listen address; empty in config disables it")
	return cmd
}

func serve(ctx context.Context, o *rootOptions, src *sourceFlags) error {
	calc, err := o.cfg.NewCalculator(o.logger)
	if err != nil {
		return err
	}

	var agg *aggregate.Aggregator
	source, closeSource, err := src.open(ctx, o)
	defer closeSource()
	switch {
	case errors.Is(err, errNoSource):
		o.logger.Warn().Msg("no data source configured, period routes disabled")
	case err != nil:
		return err
	default:
		agg = aggregate.NewAggregator(source, o.cfg.EmissionFactors, o.logger)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	httpServer := &http.Server{
		Addr:              o.cfg.Server.ListenAddr,
		Handler:           server.New(calc, agg, m, reg, o.logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var (
		grpcServer   *grpc.Server
		healthServer *health.Server
		lis          net.Listener
	)
	if o.cfg.Server.HealthAddr != "" {
		lis, err = net.Listen("tcp", o.cfg.Server.HealthAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", o.cfg.Server.HealthAddr, err)
		}
		grpcServer = grpc.NewServer()
		healthServer = health.NewServer()
		healthpb.RegisterHealthServer(grpcServer, healthServer)
		healthServer.SetServingStatus(healthServiceName, healthpb.HealthCheckResponse_SERVING)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		o.logger.Info().
			Str("addr", o.cfg.Server.ListenAddr).
			Str("methodology", calc.Methodology().Name).
			Msg("starting HTTP API")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if grpcServer != nil {
		g.Go(func() error {
			o.logger.Info().Str("addr", lis.Addr().String()).Msg("starting gRPC health service")
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		o.logger.Info().Msg("shutting down")

		if healthServer != nil {
			healthServer.Shutdown()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), o.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			o.logger.Error().Err(err).Msg("HTTP shutdown failed")
		}
		if grpcServer != nil {
			grpcServer.GracefulStop()
		}
		return nil
	})

	return g.Wait()
}
