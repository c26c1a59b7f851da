// Package e2e drives a complete in-process broker over real websocket
// and HTTP connections, backed by an in-memory database.
package e2e

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"commute-chat/api"
	"commute-chat/auth"
	"commute-chat/broker"
	"commute-chat/domain"
	"commute-chat/repositories"
	"commute-chat/runtime"
	"commute-chat/services"

	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
)

var signingKey = []byte("end_to_end_signing_key_never_used_in_production")

type BaseBrokerSuite struct {
	suite.Suite
	Config Config

	db       *badger.DB
	Users    *repositories.UserRepository
	Messages *repositories.MessageRepository
	Server   *broker.Server
	Registry *runtime.Registry
	ts       *httptest.Server
}

// SetupSuite boots a full broker on an in-memory database.
func (s *BaseBrokerSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.db, err = badger.Open(badger.DefaultOptions("").
		WithInMemory(true).
		WithLoggingLevel(badger.ERROR))
	s.Require().NoError(err)

	s.Messages, err = repositories.NewMessageRepository(s.db, log, repositories.DefaultPageSize)
	s.Require().NoError(err)
	s.Users = repositories.NewUserRepository(s.db)
	s.Registry = runtime.NewRegistry()

	chatService := services.NewChatService(s.Messages, s.Users, s.Registry, log)
	authenticator := auth.NewAuthenticator(signingKey, s.Users, log)
	s.Server = broker.NewServer(authenticator, chatService, log, 64)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/chat", s.Server.HandleWS)
	api.NewHandler(chatService, log).Register(router)
	s.ts = httptest.NewServer(router)
}

func (s *BaseBrokerSuite) TearDownSuite() {
	s.Server.Close()
	s.ts.Close()
	s.Require().NoError(s.Messages.Close())
	s.Require().NoError(s.db.Close())
}

// Step prints a colorized header so long scenarios stay readable.
func (s *BaseBrokerSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// SeedUser stores a user whose connections may message each other.
func (s *BaseBrokerSuite) SeedUser(id string, firstName string, connections ...string) {
	s.Require().NoError(s.Users.Put(domain.User{
		ID:          id,
		FirstName:   firstName,
		Connections: connections,
	}))
}

// Dial opens an authenticated websocket for the given identity and
// consumes the CONNECTED greeting.
func (s *BaseBrokerSuite) Dial(userID string) *websocket.Conn {
	credential, err := auth.GenerateToken(signingKey, userID, time.Hour)
	s.Require().NoError(err)

	url := "ws" + strings.TrimPrefix(s.ts.URL, "http") + "/chat"
	dialer := websocket.Dialer{
		HandshakeTimeout: 2 * time.Second,
		Subprotocols:     []string{credential},
	}
	conn, resp, err := dialer.Dial(url, nil)
	s.Require().NoError(err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	greeting := s.ReadFrame(conn)
	s.Require().Equal(broker.FrameConnected, greeting.Type)
	return conn
}

// Subscribe sends SUBSCRIBE and asserts the confirmation reply.
func (s *BaseBrokerSuite) Subscribe(conn *websocket.Conn, userID string) {
	s.Require().NoError(conn.WriteJSON(broker.ClientFrame{Type: broker.FrameSubscribe}))
	reply := s.ReadFrame(conn)
	s.Require().Equal(fmt.Sprintf("%s subscribed successfully.", userID), reply.Message)
}

// ReadFrame reads the next frame with a deadline, logging it when
// E2E_DEBUG_JSON is enabled.
func (s *BaseBrokerSuite) ReadFrame(conn *websocket.Conn) broker.ServerFrame {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(3 * time.Second)))

	var frame broker.ServerFrame
	s.Require().NoError(conn.ReadJSON(&frame))

	if s.Config.DebugJSON {
		raw, _ := json.Marshal(frame)
		s.T().Logf("FRAME %s", raw)
	}
	return frame
}

// GetJSON performs a GET on the read API and decodes the envelope data.
func (s *BaseBrokerSuite) GetJSON(path string, out any) {
	resp, err := http.Get(s.ts.URL + path)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var envelope struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&envelope))
	s.Require().Equal("success", envelope.Status)
	s.Require().NoError(json.Unmarshal(envelope.Data, out))
}
