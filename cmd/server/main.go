package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Tyrowin/gostreams/internal/registry"
	"github.com/Tyrowin/gostreams/internal/server"
)

func main() {
	envErr := godotenv.Load()

	config := server.NewConfigFromEnv().Sanitize()
	server.SetupLogger(config.LogLevel)
	if envErr != nil {
		slog.Debug("no .env file loaded, using environment variables", "error", envErr)
	}

	slog.Info("starting streams server")

	hub := server.NewHub(registry.New(), config)
	go hub.Run()

	httpServer := server.CreateServer(config.Port, server.SetupRoutes(hub))

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.StartServer(httpServer)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-quit:
		slog.Info("received signal", "signal", sig.String())
	case err := <-serveErr:
		if err != nil {
			slog.Error("server error", "error", err)
			exitCode = 1
		}
	}

	if err := server.ShutdownServer(httpServer, config.ShutdownTimeout); err != nil {
		exitCode = 1
	}
	if err := hub.Shutdown(config.ShutdownTimeout); err != nil {
		slog.Error("hub shutdown error", "error", err)
		exitCode = 1
	}

	os.Exit(exitCode)
}
