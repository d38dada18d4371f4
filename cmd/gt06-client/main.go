// Command gt06-client runs the software tracker client: it dials a GT06
// server, logs in, sends periodic heartbeats and locations, answers
// COMMAND frames by forwarding them to a serial bridge, and exposes its
// state over an HTTP observability API.
package main

import (
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"gt06_gateway/config"
	"gt06_gateway/internal/bridge"
	"gt06_gateway/internal/client"
	"gt06_gateway/internal/configstore"
	"gt06_gateway/internal/db"
	"gt06_gateway/internal/events"
	"gt06_gateway/internal/httpapi"
	"gt06_gateway/internal/serialtransport"
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
	if err := db.Initialize(); err != nil {
		colors.PrintWarning("Database unavailable, running without persisted config/positions: %v", err)
		store = configstore.New(nil)
	} else {
		defer db.Close()
		store = configstore.New(db.GetDB())
		if err := store.Migrate(); err != nil {
			colors.PrintWarning("Config store migration failed: %v", err)
		}
	}

	cfg, err := store.Load()
	if err != nil {
		colors.PrintError("Invalid client configuration: %v", err)
		os.Exit(2)
	}
	colors.PrintSuccess("Client configured for %s:%d as IMEI %s", cfg.Host, cfg.Port, cfg.IMEI)

	log := events.NewLog(events.DefaultCapacity)

	var cmdHandler client.CommandHandler
	var b *bridge.Bridge
	if app.BridgeSerialPort != "" {
		transport := serialtransport.New(app.BridgeSerialPort, app.BridgeBaud)
		b = bridge.New(transport, log)
		if err := b.Start(); err != nil {
			colors.PrintWarning("Serial bridge failed to start: %v", err)
		} else {
			colors.PrintSuccess("Serial bridge open on %s @ %d baud", app.BridgeSerialPort, app.BridgeBaud)
		}
		defer b.Stop()
		cmdHandler = b
	} else {
		colors.PrintInfo("No BRIDGE_SERIAL_PORT configured; inbound commands are ACKed but not forwarded")
	}

	c, err := client.New(cfg, log, client.WithCommandHandler(cmdHandler))
	if err != nil {
		colors.PrintError("Failed to construct client: %v", err)
		os.Exit(2)
	}
	c.Connect()
	defer c.Disconnect()

	apiOpts := []httpapi.Option{httpapi.WithEngine(clientAdapter{c}), httpapi.WithAPIToken(app.APIToken)}
	if b != nil {
		apiOpts = append(apiOpts, httpapi.WithBridge(b))
	}
	api := httpapi.New(log, store, apiOpts...)
	router := api.Router()

	colors.PrintHeader("GT06 CLIENT INITIALIZATION")
	colors.PrintServer("📡", "Dialing %s:%d", cfg.Host, cfg.Port)
	colors.PrintSubHeader("HTTP Observability Endpoints")
	colors.PrintEndpoint("GET", "/health", "Health check endpoint")
	colors.PrintEndpoint("GET", "/api/v1/events", "Recent event log")
	colors.PrintEndpoint("GET", "/api/v1/counters", "Running counters")
	colors.PrintEndpoint("GET", "/api/v1/config", "Current client configuration")
	colors.PrintEndpoint("PUT", "/api/v1/config", "Update client configuration")
	colors.PrintEndpoint("GET", "/api/v1/bridge", "Serial bridge link state")
	colors.PrintEndpoint("GET", "/ws/events", "Live event feed (websocket)")

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + strconv.Itoa(app.HTTPPort)
		colors.PrintServer("🌐", "HTTP observability API listening on %s", addr)
		if err := router.Run(addr); err != nil {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		colors.PrintError("HTTP server error: %v", err)
		log.Emit(events.KindError, err.Error(), nil)
	case <-quit:
		colors.PrintShutdown()
	}
}

// clientAdapter satisfies httpapi.StateProvider without httpapi needing
// to import the concrete client.Client type.
type clientAdapter struct{ c *client.Client }

func (a clientAdapter) State() string {
	return a.c.State().String()
}

func (a clientAdapter) Counters() map[string]any {
	return httpapi.ClientCounters(a.c.Counters())
}
