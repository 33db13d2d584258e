package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/driftsync/server/internal/config"
	"github.com/driftsync/server/internal/logging"
	gonet "github.com/driftsync/server/internal/net"
	"github.com/driftsync/server/internal/world"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config
	cfgPath := "config/driftsync.toml"
	if p := os.Getenv("DRIFTSYNC_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	log.Info("starting",
		zap.String("server", cfg.Server.Name),
		zap.String("bind", cfg.Server.BindAddress),
		zap.Duration("tick_rate", cfg.Network.TickRate),
	)

	// 3. Start the world actor
	w, handle := world.New(
		cfg.Network.TickRate,
		cfg.Network.CommandQueueSize,
		cfg.Network.OutboxSize,
		log.Named("world"),
	)
	go w.Run()

	// 4. HTTP endpoints: game traffic, metrics, liveness
	wsServer := gonet.NewServer(handle, cfg.Network, log.Named("net"))

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsServer.Handler())
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		body := map[string]any{
			"server":  cfg.Server.Name,
			"metrics": w.Metrics().Snapshot(),
		}
		json.NewEncoder(rw).Encode(body)
	})
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		select {
		case <-handle.Done():
			http.Error(rw, "world stopped", http.StatusServiceUnavailable)
		default:
			rw.WriteHeader(http.StatusOK)
			rw.Write([]byte("ok"))
		}
	})

	httpSrv := &http.Server{
		Addr:    cfg.Server.BindAddress,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Info("listening", zap.String("addr", cfg.Server.BindAddress))

	// 5. Wait for a signal, then unwind: stop accepting, stop the world,
	// wait for the actor to close every outbox.
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdownCh:
		log.Info("shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}

	handle.Shutdown()
	select {
	case <-handle.Done():
	case <-ctx.Done():
		log.Warn("world did not stop in time")
	}

	log.Info("stopped")
	return nil
}
