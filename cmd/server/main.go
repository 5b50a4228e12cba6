package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/courier-im/courier/internal/server"
	"github.com/courier-im/courier/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, using environment as-is")
	}

	cfg := server.NewConfigFromEnv()
	st := store.GetStore()

	srv := server.NewServer(cfg, st)
	httpServer := server.CreateServer(cfg.Port, srv.Routes())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logrus.Infof("Received signal %v, shutting down...", sig)

		if err := server.ShutdownServer(httpServer, shutdownTimeout); err != nil {
			logrus.WithError(err).Warn("HTTP shutdown did not complete cleanly")
		}
		if err := srv.Shutdown(shutdownTimeout); err != nil {
			logrus.WithError(err).Warn("Core shutdown did not complete cleanly")
		}
		if err := st.Close(); err != nil {
			logrus.WithError(err).Warn("Store close failed")
		}
	}()

	logrus.Info("Starting Courier server...")
	if err := server.StartServer(httpServer); err != nil && err != http.ErrServerClosed {
		logrus.Fatalf("Server failed: %v", err)
	}
}
