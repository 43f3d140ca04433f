/*
Package log provides structured logging for the control plane using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level for production debugging.

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all packages without passing
  - Thread-safe concurrent writes

Context Loggers:
  - WithComponent: Add component name to all logs
  - WithNodeID: Add node ID context
  - WithCluster: Add cluster name context
  - WithShard: Add shard name context
  - WithSegment: Add segment sequence context

# Usage

Initializing the Logger:

	import "github.com/cuemby/mqplane/pkg/log"

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Simple Logging:

	log.Info("placement center bootstrapped")
	log.Debug("checking shard GC queue")
	log.Warn("node heartbeat missed")
	log.Error("failed to apply raft command")
	log.Fatal("cannot start without data directory")

Component and Context Loggers:

	gcLog := log.WithComponent("shard-gc").
		With().Str("cluster_name", "prod").Logger()
	gcLog.Info().Str("shard_name", "orders-0").Msg("shard queued for deletion")

	shardLog := log.WithShard("orders-0")
	shardLog.Info().Msg("shard status transitioned to prepare_delete")

# Integration Points

This package integrates with:

  - internal/placement: logs raft bootstrap
  - internal/leader: logs leadership acquired/lost
  - internal/controller: logs GC reconciliation ticks
  - internal/notify: logs cache-update delivery failures and drops
  - cmd/*: initializes the logger from configuration at startup

# Best Practices

Do:
  - Use Info level for production
  - Use structured fields for queryable data
  - Create component-specific loggers
  - Log errors with .Err() for stack traces

Don't:
  - Log secrets (passwords, tokens) or full payload bodies
  - Use Debug level in production
  - Concatenate strings into the message (use .Str, .Int)
*/
package log
