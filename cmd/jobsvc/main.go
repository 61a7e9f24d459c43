// Command jobsvc hosts the JobRegistry, Event Bus, Run Aggregator,
// Persistent Store, and Retention Worker behind the JobService gRPC
// facade.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/aadk/jobflow/api"
	"github.com/aadk/jobflow/internal/jobsvc/metrics"
	"github.com/aadk/jobflow/internal/jobsvc/registry"
	"github.com/aadk/jobflow/internal/jobsvc/retention"
	"github.com/aadk/jobflow/internal/jobsvc/runagg"
	jobserver "github.com/aadk/jobflow/internal/jobsvc/server"
	"github.com/aadk/jobflow/internal/jobsvc/store"
	"github.com/aadk/jobflow/pkg/config"
	"github.com/aadk/jobflow/pkg/logger"
)

var (
	configPath string
	logLevel   string
)

func main() {
	root := &cobra.Command{
		Use:   "jobsvc",
		Short: "Job & Run event-streaming substrate for the AADK scaffold",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config override file (also settable via AADK_CONFIG_FILE)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug|info|warn|error)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the JobService gRPC server",
		RunE:  runServe,
	}
	root.AddCommand(serve)
	root.RunE = serve.RunE

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	if configPath != "" {
		os.Setenv("AADK_CONFIG_FILE", configPath)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logger.INFO
	}
	logger.SetLevel(level)
	logger.SetGlobalMode("jobsvc")
	log := logger.WithField("component", "main")

	fileStore, err := store.Open(cfg.Store.Path, cfg.Store.CoalesceDelay)
	if err != nil {
		return fmt.Errorf("opening persistent store: %w", err)
	}
	defer fileStore.Close()

	reg, err := registry.New(fileStore, registry.WithMetrics(metrics.Registry{}))
	if err != nil {
		return fmt.Errorf("initializing job registry: %w", err)
	}
	defer reg.Close()

	agg := runagg.New(reg, runagg.Config{
		BufferMax:  cfg.RunStream.BufferMax,
		MaxDelay:   cfg.RunStream.MaxDelay(),
		Discovery:  cfg.RunStream.DiscoveryInterval(),
		FlushEvery: cfg.RunStream.FlushInterval(),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	retentionWorker := retention.New(reg, retention.Policy{
		RetentionDays: cfg.History.RetentionDays,
		MaxCompleted:  cfg.History.MaxCompleted,
	}, 0)
	go retentionWorker.Run(ctx)

	lis, err := net.Listen("tcp", cfg.Server.JobAddr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", cfg.Server.JobAddr, err)
	}

	grpcServer := grpc.NewServer()
	api.RegisterJobServiceServer(grpcServer, jobserver.New(reg, agg))

	metricsSrv := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: metrics.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server stopped", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		log.Info("shutting down jobsvc")
		grpcServer.GracefulStop()
		_ = metricsSrv.Close()
	}()

	log.Info("jobsvc listening", "job_addr", cfg.Server.JobAddr, "metrics_addr", cfg.Server.MetricsAddr)
	return grpcServer.Serve(lis)
}
