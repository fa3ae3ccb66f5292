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

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/weiawesome/wes-io-stage/internal/config"
	"github.com/weiawesome/wes-io-stage/internal/handler"
	"github.com/weiawesome/wes-io-stage/internal/hub"
	"github.com/weiawesome/wes-io-stage/internal/service"
	pkglog "github.com/weiawesome/wes-io-stage/pkg/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	pkglog.Init(pkglog.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, ServiceName: "relay"})
	logger := pkglog.L()

	// Session pin
	plain := cfg.Relay.PIN
	if plain == "" {
		plain, err = service.GeneratePIN(cfg.Relay.PINLength)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to generate remote pin")
		}
		logger.Info().Str("pin", plain).Msg("generated remote pin")
	}
	pin, err := service.NewPIN(plain, cfg.Relay.PINCost)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to hash remote pin")
	}

	// Initialize hub and service
	wsHub := hub.NewHub(cfg.WebSocket)
	relaySvc := service.NewRelayService(wsHub, pin, service.RelayConfig{
		RateLimit: cfg.Relay.RateLimit,
		RateBurst: cfg.Relay.RateBurst,
	})
	wsHandler := handler.NewWSHandler(wsHub, relaySvc, cfg.Relay.AuthTimeout)

	// Setup HTTP server
	r := mux.NewRouter()
	wsHandler.RegisterRoutes(r)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:        addr,
		Handler:     pkglog.HTTPMiddleware(*logger)(r),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("relay listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down relay")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("relay stopped")
}
