//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"commute-chat/domain"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// LiveSession is the view of one open client connection shared between the
// registry, the router service, and the liveness monitor. Implementations must
// make every method safe to call from any goroutine: Deliver and Probe are hit
// by other users' sessions and by the heartbeat ticker while the session's own
// read loop is running.
type LiveSession interface {
	// Identity returns the authenticated user bound at handshake time.
	Identity() string
	// Deliver enqueues a live MESSAGE frame. It never blocks; it reports false
	// when the session is closing or its send queue is full, in which case the
	// push is simply lost (the message is already persisted).
	Deliver(m domain.Message) bool
	// Alive reports whether a heartbeat ack arrived since the last probe.
	Alive() bool
	// MarkStale presumes the connection dead until the next PONG.
	MarkStale()
	// Probe enqueues a PING frame.
	Probe()
	// Terminate force-closes the connection after a best-effort DISCONNECTED
	// frame. Cleanup (registry entry, pumps) runs exactly once.
	Terminate(reason string)
}

// IRegistry is the process-wide map identity -> active session.
// At most one live subscription per identity at any instant.
type IRegistry interface {
	Subscribe(identity string, s LiveSession) error
	Unsubscribe(identity string)
	// UnsubscribeSession removes the entry only when s still owns it, so a
	// closing session can clean up unconditionally without evicting a
	// successor that re-subscribed the same identity.
	UnsubscribeSession(identity string, s LiveSession)
	Resolve(identity string) (LiveSession, bool)
	Len() int
}

// ISessionIndex lists every open connection, subscribed or not.
// The liveness monitor sweeps this set, not the registry.
type ISessionIndex interface {
	Snapshot() []LiveSession
}
