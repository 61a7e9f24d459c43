// Command workflowsvc hosts WorkflowService: the pipeline runner that
// sequences a workflow.pipeline run's steps against JobService, fronted
// by a dedicated gRPC facade on AADK_WORKFLOW_ADDR.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/aadk/jobflow/api"
	"github.com/aadk/jobflow/internal/workflowsvc/pipeline"
	workflowserver "github.com/aadk/jobflow/internal/workflowsvc/server"
	"github.com/aadk/jobflow/pkg/config"
	"github.com/aadk/jobflow/pkg/logger"
)

var (
	configPath string
	logLevel   string
)

func main() {
	root := &cobra.Command{
		Use:   "workflowsvc",
		Short: "Workflow pipeline orchestrator for the AADK scaffold",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config override file (also settable via AADK_CONFIG_FILE)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug|info|warn|error)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the WorkflowService gRPC server",
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
	logger.SetGlobalMode("workflowsvc")
	log := logger.WithField("component", "main")

	conn, err := grpc.NewClient(cfg.Server.JobAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dialing jobsvc at %s: %w", cfg.Server.JobAddr, err)
	}
	defer conn.Close()
	jobClient := api.NewJobServiceClient(conn)

	store := pipeline.NewMemStore()
	workflowSvc := workflowserver.New(jobClient, store)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	lis, err := net.Listen("tcp", cfg.Server.WorkflowAddr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", cfg.Server.WorkflowAddr, err)
	}

	grpcServer := grpc.NewServer()
	api.RegisterWorkflowServiceServer(grpcServer, workflowSvc)

	go func() {
		<-ctx.Done()
		log.Info("shutting down workflowsvc")
		grpcServer.GracefulStop()
	}()

	log.Info("workflowsvc listening", "workflow_addr", cfg.Server.WorkflowAddr, "job_addr", cfg.Server.JobAddr)
	return grpcServer.Serve(lis)
}
