// Command mqtt-broker runs the broker-side process that holds the
// BrokerCache projection (clusters, users, topics, sessions,
// connections) and the packet-ID allocator: it answers SaveSession and
// DeleteSession locally, with no raft involvement, and keeps its cache
// current from UpdateCache pushes.
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
	Use:     "mqtt-broker",
	Short:   "MQTT broker-side process holding the broker cache projection",
	Version: Version,
}

func init() {
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", true, "Output logs in JSON format")

	rootCmd.AddCommand(startCmd)
	startCmd.Flags().String("config", "", "Path to a YAML config file")
	startCmd.Flags().String("rpc-addr", "127.0.0.1:7382", "gRPC Invoke listen address")
	startCmd.Flags().String("metrics-addr", "", "Metrics/health HTTP listen address (overrides config)")
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start this mqtt-broker process",
	RunE:  runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	metrics.SetVersion(Version)
	metrics.RegisterComponent("store", true, "in-memory")
	metrics.RegisterComponent("raft", true, "not applicable")
	metrics.RegisterComponent("rpc", false, "starting")

	brokerCache := cache.NewBrokerCache()

	collector := metrics.NewCollector(15*time.Second, func() {
		metrics.BrokerSessionsTotal.Set(float64(brokerCache.SessionCount()))
		metrics.BrokerConnectionsTotal.Set(float64(brokerCache.ConnectionCount()))
	})
	collector.Start()
	defer collector.Stop()

	rpcAddr, _ := cmd.Flags().GetString("rpc-addr")
	lis, err := net.Listen("tcp", rpcAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", rpcAddr, err)
	}
	grpcServer := grpc.NewServer()
	wire.RegisterInvokeServer(grpcServer, server.NewBrokerServer(brokerCache))
	metrics.RegisterComponent("rpc", true, "ready")

	errCh := make(chan error, 1)
	go func() {
		log.Info(fmt.Sprintf("mqtt-broker listening for Invoke on %s", rpcAddr))
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
		log.Info("shutting down mqtt-broker")
	case err := <-errCh:
		log.Errorf("fatal error", err)
	}

	grpcServer.GracefulStop()
	return httpServer.Close()
}
