// Command placement-center runs one member of the raft consensus group
// that backs the control plane: the authoritative bbolt stores, the
// shard/segment GC controllers, and the single-writer Invoke RPC every
// other process in the cluster calls into.
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
	"github.com/cuemby/mqplane/internal/controller"
	"github.com/cuemby/mqplane/internal/fsm"
	"github.com/cuemby/mqplane/internal/leader"
	"github.com/cuemby/mqplane/internal/notify"
	"github.com/cuemby/mqplane/internal/placement"
	"github.com/cuemby/mqplane/internal/rpc"
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
	Use:     "placement-center",
	Short:   "Raft-replicated cluster metadata service",
	Version: Version,
}

func init() {
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", true, "Output logs in JSON format")

	rootCmd.AddCommand(startCmd)
	startCmd.Flags().String("config", "", "Path to a YAML config file")
	startCmd.Flags().String("node-id", "", "Unique raft node ID (overrides config)")
	startCmd.Flags().String("bind-addr", "", "Raft bind address (overrides config)")
	startCmd.Flags().String("data-dir", "", "Data directory (overrides config)")
	startCmd.Flags().String("rpc-addr", "127.0.0.1:7380", "gRPC Invoke listen address")
	startCmd.Flags().String("metrics-addr", "", "Metrics/health HTTP listen address (overrides config)")
	startCmd.Flags().Bool("join", false, "Join an existing cluster instead of bootstrapping a new one")
	startCmd.Flags().Duration("gc-interval", 5*time.Second, "Shard/segment GC reconciliation interval")
	startCmd.Flags().Duration("leader-poll-interval", time.Second, "Raft leadership poll interval")
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start this placement center node",
	RunE:  runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyFlagOverrides(cmd, &cfg)

	metrics.SetVersion(Version)
	metrics.RegisterComponent("store", false, "opening")
	metrics.RegisterComponent("raft", false, "starting")
	metrics.RegisterComponent("rpc", false, "starting")

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	metrics.RegisterComponent("store", true, "open")

	placementCache := cache.NewPlacementCache()
	journalCache := cache.NewJournalCache()
	f := fsm.New(st, placementCache, journalCache)

	node, err := placement.New(placement.Config{NodeID: cfg.NodeID, BindAddr: cfg.BindAddr, DataDir: cfg.DataDir}, f)
	if err != nil {
		return fmt.Errorf("create placement node: %w", err)
	}

	join, _ := cmd.Flags().GetBool("join")
	if join {
		if err := node.JoinExisting(); err != nil {
			return fmt.Errorf("join cluster: %w", err)
		}
	} else {
		if err := node.Bootstrap(); err != nil {
			return fmt.Errorf("bootstrap cluster: %w", err)
		}
	}
	metrics.RegisterComponent("raft", true, "running")

	pool := rpc.NewPool()
	defer pool.Close()
	client := rpc.NewClient(pool, rpc.Config{
		RetryMax:       cfg.RPC.RetryMax,
		Backoff:        rpc.LinearBackoff(cfg.RPC.BackoffStep, cfg.RPC.BackoffMax),
		AttemptTimeout: cfg.RPC.AttemptTimeout,
	})
	dispatch := notify.NewDispatcher(client, placementCache)
	metrics.RegisterComponent("rpc", true, "ready")

	gcInterval, _ := cmd.Flags().GetDuration("gc-interval")
	shardGC := controller.NewShardGCController(journalCache, placementCache, node, client, gcInterval)
	segmentGC := controller.NewSegmentGCController(journalCache, placementCache, node, client, gcInterval)

	pollInterval, _ := cmd.Flags().GetDuration("leader-poll-interval")
	poller := leader.New(cfg.NodeID, node, placementCache, pollInterval, shardGC, segmentGC)
	poller.Start()
	defer poller.Stop()

	collector := metrics.NewCollector(15*time.Second,
		func() {
			clusters := placementCache.Clusters()
			metrics.ClustersTotal.Set(float64(len(clusters)))
			for _, ci := range clusters {
				metrics.BrokerNodesTotal.WithLabelValues(ci.ClusterName).Set(float64(placementCache.GetBrokerNum(ci.ClusterName)))
			}
			if node.IsLeader() {
				metrics.RaftIsLeader.Set(1)
			} else {
				metrics.RaftIsLeader.Set(0)
			}
			if stats := node.RaftStats(); stats != nil {
				if applied, ok := stats["applied_index"].(uint64); ok {
					metrics.RaftAppliedIndex.Set(float64(applied))
				}
			}
		},
		func() {
			for status, count := range journalCache.ShardStatusCounts() {
				metrics.ShardsTotal.WithLabelValues(status).Set(float64(count))
			}
			for status, count := range journalCache.SegmentStatusCounts() {
				metrics.SegmentsTotal.WithLabelValues(status).Set(float64(count))
			}
			metrics.WaitDeleteShardsTotal.Set(float64(journalCache.WaitDeleteShardCount()))
			metrics.WaitDeleteSegmentsTotal.Set(float64(journalCache.WaitDeleteSegmentCount()))
		},
	)
	collector.Start()
	defer collector.Stop()

	rpcAddr, _ := cmd.Flags().GetString("rpc-addr")
	lis, err := net.Listen("tcp", rpcAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", rpcAddr, err)
	}
	grpcServer := grpc.NewServer()
	wire.RegisterInvokeServer(grpcServer, server.NewPlacementServer(node, placementCache, journalCache, dispatch))

	errCh := make(chan error, 1)
	go func() {
		log.Info(fmt.Sprintf("placement center %s listening for Invoke on %s", cfg.NodeID, rpcAddr))
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
		log.Info("shutting down placement center")
	case err := <-errCh:
		log.Errorf("fatal error", err)
	}

	grpcServer.GracefulStop()
	_ = httpServer.Close()
	return node.Shutdown()
}

func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("node-id"); v != "" {
		cfg.NodeID = v
	}
	if v, _ := cmd.Flags().GetString("bind-addr"); v != "" {
		cfg.BindAddr = v
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
}
