package rpc

import (
	"context"
	"time"

	"github.com/cuemby/mqplane/internal/errs"
	"github.com/cuemby/mqplane/internal/rpc/wire"
	"github.com/cuemby/mqplane/pkg/metrics"
)

// Backoff computes the sleep duration before retry attempt n
// (1-indexed: the delay before the n+1'th underlying RPC). Implementations
// must be non-decreasing and capped.
type Backoff func(attempt int) time.Duration

// LinearBackoff returns a Backoff that grows by step per attempt up to max.
func LinearBackoff(step, max time.Duration) Backoff {
	return func(attempt int) time.Duration {
		d := time.Duration(attempt) * step
		if d > max {
			return max
		}
		return d
	}
}

// Client is the retrying RPC client every component uses to reach
// every other. One Client is shared across all targets; the Pool
// caches the underlying connections.
type Client struct {
	pool      *Pool
	retryMax  int
	backoff   Backoff
	attemptTO time.Duration
}

// Config configures a Client.
type Config struct {
	RetryMax       int
	Backoff        Backoff
	AttemptTimeout time.Duration
}

// NewClient builds a Client backed by pool.
func NewClient(pool *Pool, cfg Config) *Client {
	if cfg.Backoff == nil {
		cfg.Backoff = LinearBackoff(50*time.Millisecond, 2*time.Second)
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 5 * time.Second
	}
	return &Client{
		pool:      pool,
		retryMax:  cfg.RetryMax,
		backoff:   cfg.Backoff,
		attemptTO: cfg.AttemptTimeout,
	}
}

// RetryCall is the entry point described by the retrying RPC client
// contract: it rotates across addrs on failure, retries up to retryMax
// times beyond the first attempt, and surfaces either a decoded reply
// or a classified *errs.E.
//
// Attempt n is 1-indexed; its target is addrs[(n-1) % len(addrs)], so
// the first attempt always hits addrs[0] and a full address rotation
// is guaranteed once the attempt count reaches len(addrs).
func (c *Client) RetryCall(ctx context.Context, service, iface string, addrs []string, reqBody interface{}, replyBody interface{}) error {
	if len(addrs) == 0 {
		return errs.New(errs.EmptyAddrList, "RetryCall", nil)
	}

	env := &wire.Envelope{Service: service, Interface: iface}
	if err := env.EncodeData(reqBody); err != nil {
		return errs.New(errs.Serialization, "RetryCall", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.retryMax+1; attempt++ {
		target := addrs[(attempt-1)%len(addrs)]

		reply, err := c.callOnce(ctx, target, service, iface, env)
		if err == nil {
			if replyBody != nil {
				if decErr := reply.DecodeData(replyBody); decErr != nil {
					return errs.New(errs.Serialization, "RetryCall", decErr)
				}
			}
			return nil
		}

		lastErr = err
		if errs.KindOf(err) != errs.RpcTransport {
			// application-level or invariant errors are never retried
			return err
		}

		if ctx.Err() != nil {
			return errs.New(errs.RpcTransport, "RetryCall", ctx.Err())
		}

		if attempt <= c.retryMax {
			metrics.RPCRetriesTotal.WithLabelValues(service, iface).Inc()
			select {
			case <-ctx.Done():
				return errs.New(errs.RpcTransport, "RetryCall", ctx.Err())
			case <-time.After(c.backoff(attempt)):
			}
		}
	}

	return lastErr
}

func (c *Client) callOnce(ctx context.Context, target, service, iface string, env *wire.Envelope) (*wire.Envelope, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.RPCCallDuration, service, iface)

	cc, err := c.pool.Get(target)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.attemptTO)
	defer cancel()

	stub := wire.NewInvokeClient(cc)
	reply, err := stub.Invoke(callCtx, env)
	if err != nil {
		return nil, errs.New(errs.RpcTransport, "callOnce", err)
	}

	if reply.Error != nil {
		kind := errs.AppOther
		switch reply.Error.Kind {
		case string(errs.AppNotLeader):
			kind = errs.AppNotLeader
		case string(errs.AppNotFound):
			kind = errs.AppNotFound
		}
		return nil, errs.NewApp(kind, "callOnce", reply.Error)
	}

	return reply, nil
}
