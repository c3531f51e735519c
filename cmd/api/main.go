package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/blakebenson/artkey-backend/api/routes"
	"github.com/blakebenson/artkey-backend/internal/artkeys"
	internalauth "github.com/blakebenson/artkey-backend/internal/auth"
	"github.com/blakebenson/artkey-backend/internal/checkoutgate"
	"github.com/blakebenson/artkey-backend/internal/commerce"
	"github.com/blakebenson/artkey-backend/internal/media"
	"github.com/blakebenson/artkey-backend/internal/printcomp"
	"github.com/blakebenson/artkey-backend/internal/sessionbinding"
	"github.com/blakebenson/artkey-backend/pkg/auth/session"
	"github.com/blakebenson/artkey-backend/pkg/config"
	"github.com/blakebenson/artkey-backend/pkg/db"
	"github.com/blakebenson/artkey-backend/pkg/logger"
	"github.com/blakebenson/artkey-backend/pkg/migrate"
	"github.com/blakebenson/artkey-backend/pkg/outbox"
	"github.com/blakebenson/artkey-backend/pkg/redis"
	"github.com/blakebenson/artkey-backend/pkg/storage/gcs"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gcsClient, err := gcs.NewClient(context.Background(), cfg.GCS, cfg.GCP, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap gcs", err)
		os.Exit(1)
	}
	defer func() {
		if err := gcsClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing gcs", err)
		}
	}()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	authService, err := internalauth.NewService(internalauth.ServiceParams{
		UserRepo:       internalauth.NewRepository(dbClient.DB()),
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	templates := printcomp.NewRegistry()
	permalinks := artkeys.NewPermalinker(cfg.Site.PublicBaseURL)
	keyRepo := artkeys.NewRepository(dbClient.DB())

	mediaRepo := media.NewRepository(dbClient.DB())
	mediaService, err := media.NewService(media.ServiceParams{
		Repo:     mediaRepo,
		Keys:     keyRepo,
		Tx:       dbClient,
		Outbox:   outboxService,
		Blobs:    gcsClient,
		Logger:   logg,
		Bucket:   cfg.GCS.BucketName,
		MaxBytes: cfg.Media.MaxUploadBytes(),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create media service", err)
		os.Exit(1)
	}

	artKeyService, err := artkeys.NewService(artkeys.ServiceParams{
		Repo:           keyRepo,
		Tx:             dbClient,
		Outbox:         outboxService,
		Media:          mediaService,
		PrintTemplates: templates.Keys(),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create artkey service", err)
		os.Exit(1)
	}

	printService, err := printcomp.NewService(printcomp.ServiceParams{
		Keys:       keyRepo,
		Media:      mediaRepo,
		Blobs:      gcsClient,
		Tx:         dbClient,
		Outbox:     outboxService,
		Registry:   templates,
		Permalinks: permalinks,
		Logger:     logg,
		Bucket:     cfg.GCS.BucketName,
		QRSizePx:   cfg.Print.QRSizePx,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create print service", err)
		os.Exit(1)
	}

	commerceStore := commerce.NewStore(dbClient.DB())
	bindingManager, err := sessionbinding.NewManager(sessionbinding.ManagerParams{
		Repo:       keyRepo,
		Commerce:   commerceStore,
		Sessions:   redisClient,
		Media:      mediaService,
		Tx:         dbClient,
		Outbox:     outboxService,
		Logger:     logg,
		Permalinks: permalinks,
		SessionTTL: cfg.Session.TTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create binding manager", err)
		os.Exit(1)
	}

	gate, err := checkoutgate.NewGate(bindingManager)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout gate", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:        cfg,
			Logger:        logg,
			Redis:         redisClient,
			Sessions:      sessionManager,
			AuthService:   authService,
			ArtKeys:       artKeyService,
			Permalinks:    permalinks,
			Media:         mediaService,
			Prints:        printService,
			Gate:          gate,
			Bindings:      bindingManager,
			CommerceStore: commerceStore,
		}),
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdown
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "shutdown error", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
