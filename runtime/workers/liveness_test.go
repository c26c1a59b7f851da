package workers

import (
	"log/slog"
	"sync/atomic"
	"testing"

	"commute-chat/contract"
	"commute-chat/domain"

	"github.com/stretchr/testify/require"
)

type fakeLiveSession struct {
	alive      atomic.Bool
	staled     atomic.Int32
	probed     atomic.Int32
	terminated atomic.Int32
	reason     string
}

func (f *fakeLiveSession) Identity() string              { return "user-1" }
func (f *fakeLiveSession) Deliver(_ domain.Message) bool { return true }
func (f *fakeLiveSession) Alive() bool                   { return f.alive.Load() }
func (f *fakeLiveSession) MarkStale()                    { f.alive.Store(false); f.staled.Add(1) }
func (f *fakeLiveSession) Probe()                        { f.probed.Add(1) }
func (f *fakeLiveSession) Terminate(reason string) {
	f.terminated.Add(1)
	f.reason = reason
}

type fakeIndex struct {
	sessions []contract.LiveSession
}

func (f *fakeIndex) Snapshot() []contract.LiveSession { return f.sessions }

func TestLivenessWorker_ProbesAliveSessions(t *testing.T) {
	req := require.New(t)

	// Given a session that answered since the last sweep
	session := &fakeLiveSession{}
	session.alive.Store(true)
	worker := NewLivenessWorker(slog.Default(), &fakeIndex{sessions: []contract.LiveSession{session}}, 0)

	// When a sweep runs
	worker.sweep()

	// Then the session is probed again and flagged until the next answer
	req.Equal(int32(1), session.probed.Load())
	req.Equal(int32(1), session.staled.Load())
	req.Equal(int32(0), session.terminated.Load())
}

func TestLivenessWorker_TerminatesSilentSessions(t *testing.T) {
	req := require.New(t)

	// Given a session that never answered the previous probe
	session := &fakeLiveSession{}
	session.alive.Store(true)
	worker := NewLivenessWorker(slog.Default(), &fakeIndex{sessions: []contract.LiveSession{session}}, 0)

	// When two sweeps run without any answer in between
	worker.sweep()
	worker.sweep()

	// Then the session is closed with the inactivity reason
	req.Equal(int32(1), session.terminated.Load())
	req.Equal(DisconnectReason, session.reason)
}

func TestLivenessWorker_AnswerResetsTheClock(t *testing.T) {
	req := require.New(t)

	session := &fakeLiveSession{}
	session.alive.Store(true)
	worker := NewLivenessWorker(slog.Default(), &fakeIndex{sessions: []contract.LiveSession{session}}, 0)

	worker.sweep()
	// The client answers between sweeps
	session.alive.Store(true)
	worker.sweep()

	req.Equal(int32(0), session.terminated.Load())
	req.Equal(int32(2), session.probed.Load())
}
