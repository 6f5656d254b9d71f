// Command aetherd runs the Aether Agent Kernel: it loads configuration
// from the environment, wires every subsystem, and serves the REST/SSE/WS
// API until terminated.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bykadzu/Aether-agent-os-sub005/internal/config"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/kernel"
	"github.com/bykadzu/Aether-agent-os-sub005/pkg/logger"
)

func main() {
	cfg := config.Load()
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: "stdout"})

	k, err := kernel.New(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("kernel init failed")
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           k.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("aetherd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("http shutdown did not complete cleanly")
	}
	k.Shutdown(ctx)
	log.Info("aetherd stopped")
}
