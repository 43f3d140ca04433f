// Package rpc implements the retrying RPC client every control-plane
// component uses to talk to every other: address-list failover,
// bounded retry, and a capped backoff between attempts.
//
// Grounded on the teacher's pkg/client connection-reuse pattern,
// generalized from a single fixed manager address to the address-list
// rotation this spec's retry_call contract requires.
package rpc

import (
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/cuemby/mqplane/internal/errs"
)

// Pool lazily dials and caches one *grpc.ClientConn per target address.
type Pool struct {
	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

// NewPool returns an empty connection pool.
func NewPool() *Pool {
	return &Pool{conns: make(map[string]*grpc.ClientConn)}
}

// Get returns the cached connection for addr, dialing one on first use.
func (p *Pool) Get(addr string) (*grpc.ClientConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cc, ok := p.conns[addr]; ok {
		return cc, nil
	}

	cc, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, errs.New(errs.RpcTransport, "pool.Get", fmt.Errorf("dial %s: %w", addr, err))
	}
	p.conns[addr] = cc
	return cc, nil
}

// Close closes every cached connection.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for addr, cc := range p.conns {
		if err := cc.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", addr, err)
		}
	}
	p.conns = make(map[string]*grpc.ClientConn)
	return firstErr
}
