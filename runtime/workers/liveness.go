package workers

import (
	"commute-chat/contract"
	"context"
	"log/slog"
	"time"
)

// DisconnectReason is the best-effort message sent just before a dead
// connection is force-closed.
const DisconnectReason = "Disconnected due to inactivity."

// LivenessWorker drives heartbeats for every open connection from a single
// global ticker. Each tick, a connection that did not ack the previous probe
// is force-terminated; everyone else is presumed stale and probed again. The
// policy is strict: one missed beat is fatal.
type LivenessWorker struct {
	log      *slog.Logger
	index    contract.ISessionIndex
	interval time.Duration
}

func NewLivenessWorker(log *slog.Logger, index contract.ISessionIndex, interval time.Duration) *LivenessWorker {
	return &LivenessWorker{log: log, index: index, interval: interval}
}

func (w *LivenessWorker) Run(ctx context.Context) error {
	w.log.Info("Starting liveness worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.sweep()
		}
	}
}

// sweep walks a snapshot of all open connections, subscribed or not.
// Termination runs the session's own close path, which removes any registry
// entry before a later message can resolve it as a live destination.
func (w *LivenessWorker) sweep() {
	for _, session := range w.index.Snapshot() {
		if !session.Alive() {
			w.log.Info("Terminating unresponsive connection", "identity", session.Identity())
			session.Terminate(DisconnectReason)
			continue
		}
		session.MarkStale()
		session.Probe()
	}
}
