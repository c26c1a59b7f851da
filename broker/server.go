package broker

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"commute-chat/auth"
	"commute-chat/contract"
	"commute-chat/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	AuthFailedReply = "Authentication failed."
	ShutdownReply   = "Server shutting down."
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server upgrades authenticated connections and tracks every open
// session, subscribed or not, for the liveness sweep.
type Server struct {
	authenticator *auth.Authenticator
	service       services.IChatService
	log           *slog.Logger
	bufferSize    int

	mu       sync.Mutex
	sessions map[*Session]struct{}
}

func NewServer(authenticator *auth.Authenticator, service services.IChatService,
	log *slog.Logger, bufferSize int) *Server {
	return &Server{
		authenticator: authenticator,
		service:       service,
		log:           log,
		bufferSize:    bufferSize,
		sessions:      make(map[*Session]struct{}),
	}
}

// HandleWS upgrades the connection, authenticates the credential carried
// in the websocket subprotocol and runs the session until it closes.
func (b *Server) HandleWS(c *gin.Context) {
	credential := c.GetHeader("Sec-WebSocket-Protocol")

	// The offered subprotocol must be echoed back or the client
	// library rejects the handshake.
	header := http.Header{}
	if credential != "" {
		header.Set("Sec-WebSocket-Protocol", credential)
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, header)
	if err != nil {
		b.log.Warn("Failed to upgrade connection", slog.Any("error", err))
		return
	}

	identity, err := b.authenticator.Authenticate(credential)
	if err != nil {
		// One generic refusal whatever the cause
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, AuthFailedReply), deadline)
		_ = conn.Close()
		return
	}

	session := NewSession(conn, identity, b.service, b.log, b.bufferSize, b.remove)
	b.add(session)
	b.log.Info("Connection opened", slog.String("identity", identity))

	session.Run()
}

func (b *Server) add(session *Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions[session] = struct{}{}
}

func (b *Server) remove(session *Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, session)
	b.log.Info("Connection closed", slog.String("identity", session.Identity()))
}

// Snapshot implements contract.ISessionIndex.
func (b *Server) Snapshot() []contract.LiveSession {
	b.mu.Lock()
	defer b.mu.Unlock()

	sessions := make([]contract.LiveSession, 0, len(b.sessions))
	for session := range b.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}

// Close terminates every open session. Used on graceful shutdown.
func (b *Server) Close() {
	for _, session := range b.Snapshot() {
		session.Terminate(ShutdownReply)
	}
}
