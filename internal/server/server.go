// Package server constructs the Courier service: it wires the delivery core
// together and manages startup and graceful shutdown.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/courier-im/courier/internal/store"
)

// Server owns the routing and delivery core. Every shared registry is an
// explicit field injected at construction, so tests build isolated instances
// with fresh state.
type Server struct {
	cfg       Config
	registry  *Registry
	router    *Router
	channels  *ChannelEngine
	sessions  *SessionController
	scheduler *TimerScheduler
	store     store.Store
	limiter   *senderLimiter
	origins   *originChecker
	upgrader  websocket.Upgrader

	mu      sync.Mutex
	clients map[*Client]struct{}
	wg      sync.WaitGroup
}

// NewServer builds a fully wired server around the given store. Passing a
// nil config uses the defaults.
func NewServer(cfg *Config, st store.Store) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	sanitized := sanitizeConfig(*cfg)

	registry := NewRegistry()
	scheduler := NewTimerScheduler(sanitized.WorkerPoolSize)
	router := NewRouter(registry, st, scheduler, sanitized.SecretTTL)

	s := &Server{
		cfg:       sanitized,
		registry:  registry,
		router:    router,
		channels:  NewChannelEngine(registry, st),
		sessions:  NewSessionController(registry, router),
		scheduler: scheduler,
		store:     st,
		limiter:   newSenderLimiter(sanitized.RateLimit),
		origins:   newOriginChecker(sanitized.AllowedOrigins),
		clients:   make(map[*Client]struct{}),
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.check,
	}

	return s
}

// startClient tracks the stream and launches its pump goroutines.
func (s *Server) startClient(client *Client) {
	s.mu.Lock()
	s.clients[client] = struct{}{}
	s.mu.Unlock()

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		client.writePump()
	}()
	go func() {
		defer s.wg.Done()
		client.readPump()
	}()
}

func (s *Server) untrackClient(client *Client) {
	s.mu.Lock()
	delete(s.clients, client)
	s.mu.Unlock()
}

// Shutdown stops the scheduler, closes every tracked stream, and waits for
// the pump goroutines to finish or the timeout to elapse.
func (s *Server) Shutdown(timeout time.Duration) error {
	logrus.Info("Initiating server core shutdown...")

	s.scheduler.Stop()

	s.mu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for client := range s.clients {
		clients = append(clients, client)
	}
	s.mu.Unlock()

	for _, client := range clients {
		client.close()
	}
	logrus.Infof("Closed %d client streams", len(clients))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logrus.Info("Server core shutdown completed")
		return nil
	case <-time.After(timeout):
		logrus.Warn("Server core shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}

// CreateServer creates and configures an HTTP server with the specified port
// and handler. It sets reasonable timeout values for production use; hijacked
// WebSocket connections are not subject to these timeouts.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StartServer starts the HTTP server and begins listening for connections.
// It returns an error if the server fails to start.
func StartServer(server *http.Server) error {
	logrus.Infof("Server listening on %s", server.Addr)
	return server.ListenAndServe()
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting
// active requests. It waits for them to finish or until the timeout is
// reached.
func ShutdownServer(server *http.Server, timeout time.Duration) error {
	logrus.Info("Shutting down HTTP server...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("HTTP server shutdown error")
		return err
	}

	logrus.Info("HTTP server shutdown completed")
	return nil
}
