// Package errs defines the stable error taxonomy shared by every
// control-plane component: the retrying RPC client, the persistent
// stores, and the GC controllers all classify failures into one of
// these kinds so callers can decide whether to retry, rotate addresses,
// or surface the error untouched.
package errs

import (
	"errors"
	"fmt"
)

// Kind is a stable error classification. Callers should switch on Kind,
// never on the formatted message.
type Kind string

const (
	// EmptyAddrList means the caller supplied no target addresses.
	EmptyAddrList Kind = "empty_addr_list"
	// RpcTransport covers dial/read/write/deadline failures. Retried by
	// the retrying RPC client up to its configured cap.
	RpcTransport Kind = "rpc_transport"
	// RpcApplication means the peer replied with a typed application
	// error (NotLeader, NotFound, ...). See the Application sub-kinds.
	RpcApplication Kind = "rpc_application"
	// Serialization means a record failed to encode/decode. Fatal at
	// startup (corrupt authoritative store); logged-and-dropped for
	// cache-update notifications.
	Serialization Kind = "serialization"
	// ConsensusUnavailable means a proposal was rejected because the
	// local node isn't leader, or quorum was lost.
	ConsensusUnavailable Kind = "consensus_unavailable"
	// InvariantViolation means the caller asked for something the data
	// model forbids (deleting an Active segment, orphan segment
	// creation, ...). Never retried.
	InvariantViolation Kind = "invariant_violation"
	// Storage means the embedded key/value store returned an error
	// unrelated to the record's presence (disk I/O, corrupted bucket).
	Storage Kind = "storage"
)

// Application sub-kinds, carried in E.App when Kind == RpcApplication.
const (
	AppNotLeader Kind = "not_leader"
	AppNotFound  Kind = "not_found"
	AppOther     Kind = "other"
)

// E is the concrete error type returned by every package in this module.
type E struct {
	Kind Kind
	Op   string
	App  Kind // populated only when Kind == RpcApplication
	Err  error
}

func (e *E) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *E) Unwrap() error { return e.Err }

// New constructs an *E, matching the teacher's %w-wrapping style but
// attaching a stable Kind alongside the wrapped cause.
func New(kind Kind, op string, err error) *E {
	return &E{Kind: kind, Op: op, Err: err}
}

// NewApp constructs an RpcApplication error with an application sub-kind.
func NewApp(app Kind, op string, err error) *E {
	return &E{Kind: RpcApplication, Op: op, App: app, Err: err}
}

// KindOf extracts the Kind of err, or "" if err is not an *E.
func KindOf(err error) Kind {
	var e *E
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
