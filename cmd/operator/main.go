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
	"github.com/weiawesome/wes-io-stage/internal/kafka"
	"github.com/weiawesome/wes-io-stage/internal/lowerthird"
	"github.com/weiawesome/wes-io-stage/internal/metrics"
	"github.com/weiawesome/wes-io-stage/internal/repository"
	"github.com/weiawesome/wes-io-stage/internal/service"
	"github.com/weiawesome/wes-io-stage/internal/signaling"
	"github.com/weiawesome/wes-io-stage/internal/statebus"
	"github.com/weiawesome/wes-io-stage/internal/webrtc"
	"github.com/weiawesome/wes-io-stage/pkg/database"
	"github.com/weiawesome/wes-io-stage/pkg/jwt"
	pkglog "github.com/weiawesome/wes-io-stage/pkg/log"
	"github.com/weiawesome/wes-io-stage/pkg/middleware"
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

	pkglog.Init(pkglog.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, ServiceName: "operator"})
	logger := pkglog.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = pkglog.WithLogger(ctx, *logger)

	// Initialize PubSub and state bus
	ps, err := pubsub.NewPubSub(cfg.PubSub)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize pubsub")
	}
	defer ps.Close()
	bus := statebus.New(ps, cfg.Program.Session)

	snapshots, err := newSnapshotCache(cfg.Snapshot)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize snapshot cache")
	}
	defer snapshots.Close()

	// Connect to database using GORM
	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.AutoMigrate(db, &domain.SettingsModel{}, &domain.TemplateModel{}, &domain.SongModel{}); err != nil {
		logger.Fatal().Err(err).Msg("failed to auto-migrate")
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database migration completed")

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}

	// Initialize Kafka producer for the as-run log
	var asRun kafka.AsRunProducer
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewConfluentProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to create kafka producer, as-run log disabled")
		} else {
			defer producer.Close()
			asRun = producer
			logger.Info().Str("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("connected to kafka")
		}
	}

	clock := clockwork.NewRealClock()
	relay := signaling.NewClient(signaling.Config{
		URL:            cfg.Signaling.URL,
		ReconnectDelay: cfg.Signaling.ReconnectDelay,
		WriteWait:      cfg.Signaling.WriteWait,
		MaxMessageSize: cfg.Signaling.MaxMessageSize,
		ClientType:     domain.ClientWindowMain,
	}, clock)
	defer relay.Close()

	// Initialize repositories and services
	templateRepo := repository.NewGormTemplateRepository(db)
	sources := []lowerthird.TemplateSource{templateRepo}
	if cfg.LowerThird.TemplatesFile != "" {
		sources = append(sources, repository.NewFileTemplateSource(cfg.LowerThird.TemplatesFile))
	}

	programSvc := service.NewProgramService(service.ProgramConfig{SettleDelay: cfg.Program.SettleDelay}, service.ProgramDeps{
		Bus:          bus,
		Settings:     repository.NewGormSettingsRepository(db),
		Songs:        repository.NewGormSongRepository(db),
		Templates:    sources,
		TemplateRepo: templateRepo,
		Snapshots:    snapshots,
		AsRun:        asRun,
		Relay:        relay,
		Clock:        clock,
	})
	if err := programSvc.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start program controller")
	}

	thumbnailer := compositor.NewThumbnailer(store)
	sceneSvc := service.NewSceneService(repository.NewStorageSceneRepository(store), thumbnailer, programSvc, domain.HD)

	// Camera previews
	factory, err := webrtc.NewPeerFactory(webrtc.ICEServers(cfg.Camera.ICEServers))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create peer factory")
	}
	cameras := camera.NewRegistry(ctx, factory, relay, camera.Config{MaxSources: cfg.Camera.MaxSources}, camera.Hooks{
		OnBlank: metrics.ObserveBlank,
		OnState: metrics.ObserveCameraState,
	})
	defer cameras.Close(context.Background())
	dispatcher := service.NewDispatcher(programSvc, cameras)

	// Control sessions
	pin, err := service.NewPIN(cfg.Signaling.PIN, cfg.Relay.PINCost)
	if err != nil {
		logger.Fatal().Err(err).Msg("remote pin is required")
	}
	tokens, err := jwt.NewManager(cfg.Auth.TokenTTL, cfg.Auth.Issuer)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create token manager")
	}
	sessionSvc := service.NewSessionService(pin, tokens)
	authMiddleware := middleware.NewAuthMiddleware(tokens)

	// Setup Gin router
	httpHandler := handler.NewHandler(programSvc, sceneSvc, cameras, sessionSvc, authMiddleware)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(*logger))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "relay": relay.Ready()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	httpHandler.RegisterRoutes(r)

	addr := fmt.Sprintf("%s:%d", cfg.Control.Host, cfg.Control.Port)
	server := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	relay.Connect(gctx, cfg.Signaling.PIN)
	g.Go(func() error {
		return dispatcher.Run(gctx, relay.Messages())
	})

	if cfg.LowerThird.TemplatesFile != "" {
		watcher := service.NewTemplateWatcher(cfg.LowerThird.TemplatesFile, programSvc.ReloadTemplates)
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}

	g.Go(func() error {
		logger.Info().Str("addr", addr).Str("session", cfg.Program.Session).Msg("operator control API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down operator")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("operator stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("operator stopped")
}

func newSnapshotCache(cfg config.SnapshotConfig) (cache.SnapshotCache, error) {
	switch cfg.Driver {
	case "redis":
		return cache.NewRedisSnapshotCache(cfg.Redis, "stage", cfg.TTL)
	case "memory", "":
		return cache.NewMemorySnapshotCache(), nil
	default:
		return nil, fmt.Errorf("unsupported snapshot driver: %s", cfg.Driver)
	}
}
