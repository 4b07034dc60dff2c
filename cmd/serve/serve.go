// Package serve runs the long-lived server: REST API, MCP endpoint and
// the periodic status refresher, all over one shared engine.
package serve

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/paularlott/cli"

	"github.com/martinsuchenak/bulbs/internal/api"
	"github.com/martinsuchenak/bulbs/internal/config"
	"github.com/martinsuchenak/bulbs/internal/engine"
	"github.com/martinsuchenak/bulbs/internal/log"
	"github.com/martinsuchenak/bulbs/internal/mcp"
	"github.com/martinsuchenak/bulbs/internal/worker"
)

// Command returns the "serve" subcommand.
func Command() *cli.Command {
	return &cli.Command{
		Name:        "serve",
		Usage:       "Start the bulbs server",
		Description: "Start the HTTP server with REST API and MCP endpoints plus the background status refresher",
		Flags:       config.GetFlags(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.Load()
			cfg.ApplyFlags(cmd)
			return runServer(cfg)
		},
	}
}

func runServer(cfg *config.Config) error {
	log.Info("Configuration loaded", "data_dir", cfg.DataDir, "listen_addr", cfg.ListenAddr)

	eng, closer, err := engine.Build(cfg, true)
	if err != nil {
		log.Error("Failed to initialize engine", "error", err)
		return err
	}
	defer closer()
	log.Info("Inventory loaded", "devices", eng.Registry().Len())

	var refresher *worker.Refresher
	if cfg.RefreshEnabled {
		refresher = worker.NewRefresher(eng, cfg.RefreshSchedule)
		if err := refresher.Start(); err != nil {
			return err
		}
		defer refresher.Stop()
	} else {
		log.Info("Status refresher disabled")
	}

	apiHandler := api.NewHandler(eng)
	mcpServer := mcp.NewServer(eng)

	mux := http.NewServeMux()
	apiHandler.RegisterRoutes(mux)
	mux.HandleFunc("/mcp", mcpServer.GetHTTPHandler())

	var handler http.Handler = mux
	if cfg.IsAPIAuthEnabled() {
		handler = api.AuthMiddleware(cfg.APIToken, handler)
	}
	handler = api.SecurityHeadersMiddleware(handler)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: handler,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Info("Shutting down server...")
		server.Close()
	}()

	log.Info("Starting bulbs server", "addr", cfg.ListenAddr)
	log.Info("API available", "url", "http://localhost"+cfg.ListenAddr+"/api/")
	log.Info("MCP available", "url", "http://localhost"+cfg.ListenAddr+"/mcp")
	if cfg.IsAPIAuthEnabled() {
		log.Info("API authentication enabled")
	}
	mcpServer.LogStartup()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("Server error", "error", err)
		return err
	}

	log.Info("Server stopped")
	return nil
}
