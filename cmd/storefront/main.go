package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"takeaway-storefront/internal/config"
	"takeaway-storefront/internal/infrastructure/amap"
	"takeaway-storefront/internal/infrastructure/backend"
	"takeaway-storefront/internal/infrastructure/repo"
	"takeaway-storefront/internal/location"
	"takeaway-storefront/internal/push"
	"takeaway-storefront/internal/server"
	"takeaway-storefront/internal/usecase"
)

func main() {
	config.Load(".env", ".env.local")
	envDefaults, err := config.EnvDefaults()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	env := flag.String("env", envDefaults.Env, "")
	port := flag.Int("port", envDefaults.Port, "")
	jwtSecret := flag.String("jwt-secret", envDefaults.JWTSecret, "")
	logJSON := flag.Bool("log-json", envDefaults.LogJSON, "")
	backendMode := flag.String("backend", envDefaults.BackendMode, "memory or http")
	backendURL := flag.String("backend-url", envDefaults.BackendURL, "")
	databaseURL := flag.String("database-url", envDefaults.DatabaseURL, "")
	pushTransport := flag.String("push", envDefaults.PushTransport, "memory, redis or kafka")
	allocation := flag.String("allocation", envDefaults.Allocation, "even or proportional")

	flag.Parse()

	cfg := envDefaults
	cfg.Env = *env
	cfg.Port = *port
	cfg.JWTSecret = *jwtSecret
	cfg.LogJSON = *logJSON
	cfg.BackendMode = *backendMode
	cfg.BackendURL = *backendURL
	cfg.DatabaseURL = *databaseURL
	cfg.PushTransport = *pushTransport
	cfg.Allocation = *allocation

	logger := newLogger(cfg)
	defer logger.Sync()

	if cfg.JWTSecret == "" {
		if cfg.Env != "dev" {
			logger.Fatal("jwt secret is required outside dev")
		}
		cfg.JWTSecret = "dev-secret"
		logger.Warn("using the development jwt secret")
	}

	var (
		orders    usecase.OrderRepo
		wallets   usecase.WalletRepo
		publisher usecase.StatusPublisher
		channels  func() push.Channel
	)
	var locations location.Store = repo.NewMemoryLocationRepo()
	if cfg.DatabaseURL != "" {
		pg, err := repo.NewPostgresRepo(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("connect postgres", zap.Error(err))
		}
		defer pg.Close()
		orders, wallets, locations = pg, pg, pg
	} else {
		orders, wallets = repo.NewMemoryOrderRepo(), repo.NewMemoryWalletRepo()
	}

	switch cfg.PushTransport {
	case "redis":
		rdb := push.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer rdb.Close()
		publisher = &push.RedisPublisher{Client: rdb}
		channels = func() push.Channel { return push.NewRedisChannel(rdb, logger) }
	case "kafka":
		kp := push.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		publisher = kp
		channels = func() push.Channel { return push.NewKafkaChannel(cfg.KafkaBrokers, cfg.KafkaTopic, logger) }
	default:
		hub := push.NewHub(logger)
		publisher = hub
		channels = func() push.Channel { return push.NewHubChannel(hub) }
	}

	auth := &usecase.AuthService{JWTSecret: cfg.JWTSecret, TTL: 7 * 24 * time.Hour}

	var (
		svc      *usecase.OrderService
		catalog  server.Catalog
		backends server.BackendFactory
	)
	switch cfg.BackendMode {
	case "http":
		client := &backend.Client{BaseURL: cfg.BackendURL, HTTP: &http.Client{Timeout: 15 * time.Second}}
		backends = func(int64) server.Backend { return client }
	default:
		mc := repo.NewMemoryCatalog()
		if cfg.SeedDemo {
			seedCatalog(mc)
		}
		catalog = mc
		svc = &usecase.OrderService{
			Repo:      orders,
			Wallets:   wallets,
			Catalog:   mc,
			Publisher: publisher,
			Logger:    logger,
			ReturnURL: cfg.PayReturnURL,
		}
		backends = func(uid int64) server.Backend { return svc.ForUser(uid) }
	}

	var geocoder location.Geocoder
	if cfg.AMapKey != "" {
		geocoder = &amap.Client{BaseURL: cfg.AMapURL, Key: cfg.AMapKey}
	}
	loc := location.NewCache(
		location.StaticLocator{Latitude: cfg.Latitude, Longitude: cfg.Longitude, Set: cfg.LocationSet()},
		geocoder, locations, logger)
	loc.TTL = cfg.LocationTTL
	loc.Timeout = cfg.LocationTimeout
	loc.Load()

	srv := server.New(server.Options{
		Config:   cfg,
		Auth:     auth,
		Backends: backends,
		Location: loc,
		Channels: channels,
		Orders:   svc,
		Catalog:  catalog,
		Logger:   logger,
	})

	httpServer := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("storefront listening",
			zap.Int("port", cfg.Port),
			zap.String("env", cfg.Env),
			zap.String("backend", cfg.BackendMode),
			zap.String("push", cfg.PushTransport),
			zap.Bool("postgres", cfg.DatabaseURL != ""))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
}

func newLogger(cfg config.Config) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.LogJSON {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
