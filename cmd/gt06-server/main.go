// Command gt06-server runs the GT06 TCP server: it accepts concurrent
// tracker connections, decodes and ACKs their frames, optionally
// persists accepted devices and positions to Postgres, and exposes the
// accumulated event log over an HTTP observability API.
package main

import (
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"gt06_gateway/config"
	"gt06_gateway/internal/configstore"
	"gt06_gateway/internal/db"
	"gt06_gateway/internal/events"
	"gt06_gateway/internal/httpapi"
	"gt06_gateway/internal/tcpserver"
	"gt06_gateway/pkg/colors"

	"github.com/joho/godotenv"
)

func main() {
	colors.PrintBanner()

	if err := godotenv.Load(); err != nil {
		colors.PrintWarning("No .env file found, using system environment variables")
	} else {
		colors.PrintSuccess("Environment configuration loaded from .env file")
	}

	app := config.GetAppConfig()

	var store *configstore.Store
	var serverOpts []tcpserver.Option
	if err := db.Initialize(); err != nil {
		colors.PrintWarning("Database unavailable, running without persisted devices/positions: %v", err)
		store = configstore.New(nil)
	} else {
		defer db.Close()
		store = configstore.New(db.GetDB())
		if err := store.Migrate(); err != nil {
			colors.PrintWarning("Config store migration failed: %v", err)
		}
		serverOpts = append(serverOpts, tcpserver.WithDB(db.GetDB()))
		colors.PrintSuccess("Persisting accepted devices and positions to Postgres")
	}

	log := events.NewLog(events.DefaultCapacity)

	srv := tcpserver.New(log, serverOpts...)

	addr := ":" + strconv.Itoa(app.TCPPort)
	colors.PrintHeader("GT06 SERVER INITIALIZATION")
	colors.PrintServer("📡", "TCP Server configured for port %d (GT06 device connections)", app.TCPPort)
	colors.PrintServer("🌐", "HTTP Server configured for port %d (observability API)", app.HTTPPort)

	errCh := make(chan error, 2)
	go func() {
		if err := srv.Serve(addr); err != nil {
			errCh <- err
		}
	}()

	api := httpapi.New(log, store, httpapi.WithDB(db.GetDB()), httpapi.WithAPIToken(app.APIToken), httpapi.WithEngine(srv))
	router := api.Router()

	colors.PrintSubHeader("HTTP Observability Endpoints")
	colors.PrintEndpoint("GET", "/health", "Health check endpoint")
	colors.PrintEndpoint("GET", "/api/v1/events", "Recent event log")
	colors.PrintEndpoint("GET", "/api/v1/counters", "Aggregated packet counters")
	colors.PrintEndpoint("GET", "/api/v1/positions/:imei", "Recent positions for a device")
	colors.PrintEndpoint("GET", "/ws/events", "Live event feed (websocket)")

	go func() {
		httpAddr := ":" + strconv.Itoa(app.HTTPPort)
		colors.PrintServer("🌐", "HTTP observability API listening on %s", httpAddr)
		if err := router.Run(httpAddr); err != nil {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		colors.PrintError("Server error: %v", err)
	case <-quit:
		colors.PrintShutdown()
	}

	srv.Close()
}
