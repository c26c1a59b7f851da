package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"commute-chat/api"
	"commute-chat/auth"
	"commute-chat/broker"
	"commute-chat/repositories"
	"commute-chat/runtime"
	"commute-chat/runtime/workers"
	"commute-chat/services"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// Returning an error instead of exiting keeps the defers (database close in
// particular) running on every path and makes the wiring testable.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.INFO))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	//  Defer will be executed before run() returned anything to main()
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Storage & domain services
	messageRepository, err := repositories.NewMessageRepository(db, log, config.PageSize)
	if err != nil {
		return fmt.Errorf("message repository failed to start: %w", err)
	}
	defer func() { _ = messageRepository.Close() }()
	userRepository := repositories.NewUserRepository(db)

	registry := runtime.NewRegistry()
	chatService := services.NewChatService(messageRepository, userRepository, registry, log)

	// 4. Broker & supervised workers
	authenticator := auth.NewAuthenticator([]byte(config.JWTKey), userRepository, log)
	server := broker.NewServer(authenticator, chatService, log, config.SessionBufferSize)

	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(
		workers.NewLivenessWorker(log, server, config.HeartbeatInterval),
		workers.NewTelemetryWorker(log, server, registry, config.TelemetryInterval),
	)

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sup.Run(ctx)

	// 6. HTTP server (websocket endpoint + read API)
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/chat", server.HandleWS)
	api.NewHandler(chatService, log).Register(router)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{Addr: address, Handler: router}

	// Use an error channel to capture ListenAndServe() issues
	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting broker", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 8. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown did not finish cleanly", "error", err)
	}
	server.Close()
	sup.Stop()
	log.Info("Program stopped cleanly")

	return nil
}
