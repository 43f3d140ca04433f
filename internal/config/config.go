// Package config loads the per-process configuration shared by the
// three binaries (placement-center, journal-server, mqtt-broker):
// cluster identity, raft bind address and peers, data directory, RPC
// retry/backoff tuning, and heartbeat timing.
//
// Grounded on the teacher's flag-driven cmd/warren/main.go
// configuration (cobra flags bound directly to manager.Config fields),
// generalized into a YAML file layer since a multi-process control
// plane has more configuration surface than warren's single binary:
// flags here only override, they never replace, a config file loaded
// via gopkg.in/yaml.v3.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration surface for one control-plane
// process. Every binary embeds the fields it needs and ignores the
// rest.
type Config struct {
	ClusterName string   `yaml:"cluster_name"`
	NodeID      string   `yaml:"node_id"`
	BindAddr    string   `yaml:"bind_addr"`
	DataDir     string   `yaml:"data_dir"`
	Peers       []string `yaml:"peers"`

	RPC      RPCConfig      `yaml:"rpc"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// RPCConfig tunes the retrying RPC client.
type RPCConfig struct {
	RetryMax          int           `yaml:"retry_max"`
	BackoffStep       time.Duration `yaml:"backoff_step"`
	BackoffMax        time.Duration `yaml:"backoff_max"`
	AttemptTimeout    time.Duration `yaml:"attempt_timeout"`
}

// HeartbeatConfig tunes node liveness tracking.
type HeartbeatConfig struct {
	Period time.Duration `yaml:"period"`
	TTL    time.Duration `yaml:"ttl"`
}

// LogConfig mirrors pkg/log.Config.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// MetricsConfig controls the metrics/health HTTP listener.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a Config with the same defaults the teacher's cobra
// flags carry (loopback addresses, ./*-data directories), before any
// file or flag override is applied.
func Default() Config {
	return Config{
		ClusterName: "default",
		NodeID:      "node-1",
		BindAddr:    "127.0.0.1:7380",
		DataDir:     "./mqplane-data",
		RPC: RPCConfig{
			RetryMax:       3,
			BackoffStep:    50 * time.Millisecond,
			BackoffMax:     2 * time.Second,
			AttemptTimeout: 5 * time.Second,
		},
		Heartbeat: HeartbeatConfig{
			Period: 3 * time.Second,
			TTL:    15 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  true,
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9080",
		},
	}
}

// Load reads path (if non-empty and present) over Default, and returns
// the merged result. A missing path is not an error: callers run on
// defaults plus whatever cobra flags they additionally apply.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
