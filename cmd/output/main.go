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

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/weiawesome/wes-io-stage/internal/cache"
	"github.com/weiawesome/wes-io-stage/internal/camera"
	"github.com/weiawesome/wes-io-stage/internal/compositor"
	"github.com/weiawesome/wes-io-stage/internal/config"
	"github.com/weiawesome/wes-io-stage/internal/domain"
	"github.com/weiawesome/wes-io-stage/internal/handler"
	"github.com/weiawesome/wes-io-stage/internal/service"
	"github.com/weiawesome/wes-io-stage/internal/signaling"
	"github.com/weiawesome/wes-io-stage/internal/statebus"
	"github.com/weiawesome/wes-io-stage/internal/webrtc"
	pkglog "github.com/weiawesome/wes-io-stage/pkg/log"
	"github.com/weiawesome/wes-io-stage/pkg/pubsub"
	"github.com/weiawesome/wes-io-stage/pkg/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	pkglog.Init(pkglog.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, ServiceName: "output"})
	logger := pkglog.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = pkglog.WithLogger(ctx, *logger)

	canvas := domain.Canvas{W: cfg.Output.Width, H: cfg.Output.Height}
	if canvas.W <= 0 || canvas.H <= 0 {
		canvas = domain.HD
	}

	// Initialize PubSub and state bus
	ps, err := pubsub.NewPubSub(cfg.PubSub)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize pubsub")
	}
	defer ps.Close()
	bus := statebus.New(ps, cfg.Program.Session)

	var snapshots cache.SnapshotCache
	switch cfg.Snapshot.Driver {
	case "redis":
		snapshots, err = cache.NewRedisSnapshotCache(cfg.Snapshot.Redis, "stage", cfg.Snapshot.TTL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to snapshot cache")
		}
		defer snapshots.Close()
	default:
		// A memory cache is never shared with the operator, so the window
		// starts blank and follows deltas.
		snapshots = cache.NewMemorySnapshotCache()
	}

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}

	relay := signaling.NewClient(signaling.Config{
		URL:            cfg.Signaling.URL,
		ReconnectDelay: cfg.Signaling.ReconnectDelay,
		WriteWait:      cfg.Signaling.WriteWait,
		MaxMessageSize: cfg.Signaling.MaxMessageSize,
		ClientType:     domain.ClientWindowOutput,
	}, clockwork.NewRealClock())
	defer relay.Close()

	factory, err := webrtc.NewPeerFactory(webrtc.ICEServers(cfg.Camera.ICEServers))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create peer factory")
	}

	// The registry hooks and the output service refer to each other.
	var outputSvc service.OutputService
	cameras := camera.NewRegistry(ctx, factory, relay, camera.Config{MaxSources: cfg.Camera.MaxSources}, camera.Hooks{
		OnBlank: func(deviceID string) {
			outputSvc.CameraBlank(deviceID)
		},
		OnState: func(deviceID string, role domain.CameraRole, state domain.ConnectionState) {
			outputSvc.CameraState(deviceID, role, state)
		},
	})
	defer cameras.Close(context.Background())
	outputSvc = service.NewOutputService(bus, snapshots, cameras, canvas)
	dispatcher := service.NewDispatcher(nil, outputSvc)

	outputHandler := handler.NewOutputHandler(outputSvc, compositor.NewThumbnailer(store), canvas)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(*logger))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "relay": relay.Ready()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	outputHandler.RegisterRoutes(r)

	addr := fmt.Sprintf("%s:%d", cfg.Output.Host, cfg.Output.Port)
	server := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return outputSvc.Run(gctx)
	})

	relay.Connect(gctx, cfg.Signaling.PIN)
	g.Go(func() error {
		return dispatcher.Run(gctx, relay.Messages())
	})

	g.Go(func() error {
		logger.Info().Str("addr", addr).Str("session", cfg.Program.Session).Msg("output window listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down output")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("output stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("output stopped")
}
