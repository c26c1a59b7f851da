package broker

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"commute-chat/domain"
	"commute-chat/errors"
	"commute-chat/services"

	"github.com/gorilla/websocket"
)

// Replies sent back over the socket.
const (
	ConnectedReply    = "Connection established and authenticated."
	AlreadySubscribed = "You are already subscribed."
	InvalidFrameReply = "Invalid message format."
	StoreFailureReply = "Your message could not be stored, please retry."
)

const writeTimeout = 10 * time.Second

// Session owns one authenticated websocket connection. A single read loop
// consumes frames in order, a single write pump drains the send channel,
// so the connection never sees interleaved writes.
type Session struct {
	conn     *websocket.Conn
	identity string
	service  services.IChatService
	log      *slog.Logger

	send chan ServerFrame
	done chan struct{}

	alive      atomic.Bool
	subscribed atomic.Bool
	closeOnce  sync.Once
	onClose    func(*Session)
}

func NewSession(conn *websocket.Conn, identity string, service services.IChatService,
	log *slog.Logger, bufferSize int, onClose func(*Session)) *Session {
	s := &Session{
		conn:     conn,
		identity: identity,
		service:  service,
		log:      log.With(slog.String("identity", identity)),
		send:     make(chan ServerFrame, bufferSize),
		done:     make(chan struct{}),
		onClose:  onClose,
	}
	s.alive.Store(true)
	go s.writePump()
	return s
}

// Run consumes inbound frames until the connection drops. It must be
// called from the connection's handler goroutine.
func (s *Session) Run() {
	defer s.Close()

	s.enqueue(ConnectedFrame(ConnectedReply))

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var frame ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.enqueue(InfoFrame(InvalidFrameReply))
			continue
		}
		s.handleFrame(frame)
	}
}

func (s *Session) handleFrame(frame ClientFrame) {
	switch frame.Type {
	case FrameSubscribe:
		s.handleSubscribe()
	case FrameUnsubscribe:
		s.handleUnsubscribe()
	case FrameMessage:
		s.handleMessage(frame)
	case FrameMarkRead:
		s.handleMarkRead(frame)
	case FramePong:
		s.alive.Store(true)
	default:
		s.enqueue(InfoFrame(InvalidFrameReply))
	}
}

func (s *Session) handleSubscribe() {
	if s.subscribed.Load() {
		s.enqueue(InfoFrame(AlreadySubscribed))
		return
	}

	if err := s.service.Subscribe(s.identity, s); err != nil {
		// Another live connection already holds the identity
		if stderrors.Is(err, errors.ErrAlreadySubscribed) {
			s.enqueue(InfoFrame(AlreadySubscribed))
			return
		}
		s.log.Error("Failed to subscribe", slog.Any("error", err))
		s.enqueue(ErrorFrame(InvalidFrameReply))
		return
	}
	s.subscribed.Store(true)

	// Terminate may have torn the session down while the registry add was
	// in flight, in which case Close already missed the entry: give it back.
	select {
	case <-s.done:
		s.service.Unsubscribe(s.identity, s)
		return
	default:
	}

	s.enqueue(InfoFrame(fmt.Sprintf("%s subscribed successfully.", s.identity)))
}

func (s *Session) handleUnsubscribe() {
	if s.subscribed.CompareAndSwap(true, false) {
		s.service.Unsubscribe(s.identity, s)
	}
}

func (s *Session) handleMessage(frame ClientFrame) {
	if err := frame.Validate(); err != nil {
		s.enqueue(InfoFrame(InvalidFrameReply))
		return
	}

	_, delivered, err := s.service.SendMessage(s.identity, frame.ToUserID, frame.Text)
	if err != nil {
		s.log.Error("Failed to store message", slog.String("to", frame.ToUserID), slog.Any("error", err))
		s.enqueue(ErrorFrame(StoreFailureReply))
		return
	}
	if !delivered {
		s.log.Debug("Recipient offline, message stored", slog.String("to", frame.ToUserID))
	}
}

func (s *Session) handleMarkRead(frame ClientFrame) {
	if err := frame.Validate(); err != nil {
		s.enqueue(InfoFrame(InvalidFrameReply))
		return
	}

	if err := s.service.MarkRead(frame.FromUserID, s.identity); err != nil {
		s.log.Error("Failed to mark conversation read",
			slog.String("from", frame.FromUserID), slog.Any("error", err))
	}
}

// enqueue hands a frame to the write pump without ever blocking the
// caller. A full buffer on a dying connection drops the frame.
func (s *Session) enqueue(frame ServerFrame) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

func (s *Session) writePump() {
	for {
		select {
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteJSON(frame); err != nil {
				s.Close()
				_ = s.conn.Close()
				return
			}
		case <-s.done:
			s.flush()
			return
		}
	}
}

// flush drains buffered frames onto the wire, then closes the socket.
// Frames already enqueued (a DISCONNECTED notice typically) still go out.
func (s *Session) flush() {
	for {
		select {
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = s.conn.WriteJSON(frame)
		default:
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = s.conn.Close()
			return
		}
	}
}

// Identity implements contract.LiveSession.
func (s *Session) Identity() string { return s.identity }

// Deliver pushes a live copy of a stored message. Best effort only.
func (s *Session) Deliver(m domain.Message) bool {
	return s.enqueue(ServerFrame{
		Type:    FrameMessage,
		Message: MessagePayload{From: m.From, Text: m.Text, Timestamp: m.CreatedAt},
	})
}

func (s *Session) Alive() bool { return s.alive.Load() }

func (s *Session) MarkStale() { s.alive.Store(false) }

// Probe asks the client to prove liveness before the next sweep.
func (s *Session) Probe() { s.enqueue(PingFrame()) }

// Terminate notifies the client, then tears the connection down.
func (s *Session) Terminate(reason string) {
	s.enqueue(DisconnectedFrame(reason))
	s.Close()
}

// Close runs the teardown exactly once: registry cleanup, pump shutdown,
// socket close, server-side bookkeeping. The registry release is
// unconditional and scoped to this session, so it is safe whether the
// subscription landed before, during, or never.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.subscribed.Store(false)
		s.service.Unsubscribe(s.identity, s)
		if s.onClose != nil {
			s.onClose(s)
		}
	})
}
