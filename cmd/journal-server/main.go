// Command journal-server runs the local-bookkeeping process that owns
// one journal shard/segment replica: it answers DeleteShardFile,
// GetShardDeleteStatus, DeleteSegmentFile, GetSegmentDeleteStatus on
// behalf of the placement center's GC controllers, and keeps its
// JournalCache current from UpdateCache pushes.
package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/cuemby/mqplane/internal/cache"
	"github.com/cuemby/mqplane/internal/config"
	"github.com/cuemby/mqplane/internal/rpc/wire"
	"github.com/cuemby/mqplane/internal/server"
	"github.com/cuemby/mqplane/internal/store"
	"github.com/cuemby/mqplane/pkg/log"
	"github.com/cuemby/mqplane/pkg/metrics"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "journal-server",
	Short:   "Local bookkeeping process for one journal shard/segment replica",
	Version: Version,
}

func init() {
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", true, "Output logs in JSON format")

	rootCmd.AddCommand(startCmd)
	startCmd.Flags().String("config", "", "Path to a YAML config file")
	startCmd.Flags().String("rpc-addr", "127.0.0.1:7381", "gRPC Invoke listen address")
	startCmd.Flags().String("metrics-addr", "", "Metrics/health HTTP listen address (overrides config)")
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start this journal-server process",
	RunE:  runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	metrics.SetVersion(Version)
	metrics.RegisterComponent("raft", true, "not applicable")
	metrics.RegisterComponent("rpc", false, "starting")

	idx, err := store.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open offset index: %w", err)
	}
	defer idx.Close()
	metrics.RegisterComponent("store", true, cfg.DataDir)

	journalCache := cache.NewJournalCache()

	collector := metrics.NewCollector(15*time.Second, func() {
		for status, count := range journalCache.ShardStatusCounts() {
			metrics.ShardsTotal.WithLabelValues(status).Set(float64(count))
		}
		for status, count := range journalCache.SegmentStatusCounts() {
			metrics.SegmentsTotal.WithLabelValues(status).Set(float64(count))
		}
	})
	collector.Start()
	defer collector.Stop()

	rpcAddr, _ := cmd.Flags().GetString("rpc-addr")
	lis, err := net.Listen("tcp", rpcAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", rpcAddr, err)
	}
	grpcServer := grpc.NewServer()
	wire.RegisterInvokeServer(grpcServer, server.NewJournalFileServer(journalCache, idx))
	metrics.RegisterComponent("rpc", true, "ready")

	errCh := make(chan error, 1)
	go func() {
		log.Info(fmt.Sprintf("journal-server listening for Invoke on %s", rpcAddr))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc serve: %w", err)
		}
	}()

	metricsAddr := cfg.Metrics.Addr
	if v, _ := cmd.Flags().GetString("metrics-addr"); v != "" {
		metricsAddr = v
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	httpServer := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("shutting down journal-server")
	case err := <-errCh:
		log.Errorf("fatal error", err)
	}

	grpcServer.GracefulStop()
	return httpServer.Close()
}
