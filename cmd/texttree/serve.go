package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/nainya/texttree/internal/config"
	"github.com/nainya/texttree/internal/logger"
	"github.com/nainya/texttree/internal/metrics"
	"github.com/nainya/texttree/internal/server"
	"github.com/nainya/texttree/pkg/idgen"
	"github.com/nainya/texttree/pkg/model"
	"github.com/nainya/texttree/pkg/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gRPC Documents service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath, envFiles...)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func openStore(cfg config.Config, log *logger.Logger) (store.Store, error) {
	if cfg.Store.Backend == config.BackendMemory {
		return store.NewMemoryStore(), nil
	}
	js, err := store.OpenJournalStore(cfg.Store.Path, log.Component("store").Zerolog())
	if err != nil {
		return nil, err
	}
	return js, nil
}

func serve(ctx context.Context, cfg config.Config) error {
	log := logger.InitGlobalLogger(logger.Config{
		Level:      cfg.Log.Level,
		Pretty:     cfg.Log.Pretty,
		WithCaller: cfg.Log.Caller,
	})
	log.LogServerStart(cfg.GRPCPort, cfg.Store.Backend, cfg.Store.Path)

	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if c, ok := st.(io.Closer); ok {
			if err := c.Close(); err != nil {
				log.Error().Err(err).Msg("Closing store failed")
			}
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	met := metrics.New(reg)

	gen, err := idgen.ByName(cfg.IDs)
	if err != nil {
		return err
	}
	seed, err := cfg.SeedText()
	if err != nil {
		return err
	}
	m, err := model.New(st,
		model.WithIDGenerator(gen),
		model.WithLogger(log.Component("model").Zerolog()),
		model.WithRecorder(met),
		model.WithThreshold(cfg.MatchThreshold),
		model.WithSeedText(seed),
	)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if err := m.CheckInvariants(); err != nil {
		log.Warn().Err(err).Msg("Document tree failed consistency checks")
	}

	srv := server.NewServer(m, met, log)
	grpcServer, hs := server.NewGRPCServer(srv,
		grpc.MaxRecvMsgSize(16*1024*1024),
		grpc.MaxSendMsgSize(16*1024*1024),
	)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	var obs *server.ObservabilityServer
	if cfg.MetricsPort != 0 {
		obs = server.NewObservabilityServer(cfg.MetricsPort, reg, log)
		go func() {
			if err := obs.Start(); err != nil {
				log.Error().Err(err).Msg("Observability server stopped")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()
	if obs != nil {
		obs.SetReady(true)
	}
	log.LogServerReady(cfg.GRPCPort)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve: %w", err)
		}
	}

	log.LogServerShutdown()
	hs.SetServingStatus(server.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	if obs != nil {
		obs.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Observability shutdown failed")
		}
	}
	grpcServer.GracefulStop()
	return nil
}
