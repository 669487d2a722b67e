package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"imagebatch/internal/bridge"
	"imagebatch/internal/domain"
	"imagebatch/internal/infra"
	"imagebatch/internal/nodeagent"
)

var (
	nodeID           int64
	nodePort         int
	nodeIP           string
	orchestratorURL  string
	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start serving jobs and sending heartbeats",
	Example: `  # node 1 on its default port (50051)
  nodeagent start --id 1

  # explicit address and orchestrator
  nodeagent start --id 2 --ip 10.0.0.12 --port 6000 --orchestrator http://orch:8080/soap`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)

	cfg := infra.LoadConfig()
	startCmd.Flags().Int64Var(&nodeID, "id", 0, "node id (required)")
	startCmd.Flags().IntVar(&nodePort, "port", 0, "listen port (default 50050+id)")
	startCmd.Flags().StringVar(&nodeIP, "ip", domain.DefaultNodeHost, "address the orchestrator reaches this node on")
	startCmd.Flags().StringVar(&orchestratorURL, "orchestrator", cfg.OrchestratorURL, "orchestrator envelope endpoint")
	startCmd.Flags().DurationVar(&heartbeatEvery, "interval", 30*time.Second, "heartbeat interval")
	startCmd.Flags().DurationVar(&heartbeatTimeout, "timeout", 10*time.Second, "heartbeat request timeout")
	_ = startCmd.MarkFlagRequired("id")
}

func runStart(cmd *cobra.Command, _ []string) error {
	if nodeID <= 0 {
		return fmt.Errorf("--id must be positive")
	}
	port := nodePort
	if port == 0 {
		port = domain.DefaultNodePort(nodeID)
	}
	cfg := infra.LoadConfig()
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogFile).With().Int64("node_id", nodeID).Logger()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := bridge.NewClient(orchestratorURL, heartbeatTimeout, logger)
	hb := nodeagent.NewHeartbeater(client, nodeID, nodeIP, port, heartbeatEvery, logger)
	proc := nodeagent.NewProcessor(nodeagent.Passthrough{}, hb, logger)

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           proc.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hb.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Str("orchestrator", orchestratorURL).Msg("nodeagent: listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("nodeagent: stopped")
	return nil
}
