package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/Skotchmaster/bi_dashboard/internal/audit"
	"github.com/Skotchmaster/bi_dashboard/internal/config"
	"github.com/Skotchmaster/bi_dashboard/internal/events"
	"github.com/Skotchmaster/bi_dashboard/internal/handlers"
	"github.com/Skotchmaster/bi_dashboard/internal/janitor"
	"github.com/Skotchmaster/bi_dashboard/internal/logging"
	authmw "github.com/Skotchmaster/bi_dashboard/internal/middleware/auth"
	"github.com/Skotchmaster/bi_dashboard/internal/ratelimit"
	"github.com/Skotchmaster/bi_dashboard/internal/repo"
	authsvc "github.com/Skotchmaster/bi_dashboard/internal/service/auth"
	httpserver "github.com/Skotchmaster/bi_dashboard/internal/transport/http"
	"github.com/Skotchmaster/bi_dashboard/pkg/db"
	loggingmw "github.com/Skotchmaster/bi_dashboard/pkg/middleware/logging"
	"github.com/Skotchmaster/bi_dashboard/pkg/tokens"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(cfg.LogLevel, cfg.Env)
	slog.SetDefault(logger)
	if len(cfg.InsecureSecrets) > 0 {
		logger.Warn("using built-in signing secrets", "env", cfg.InsecureSecrets)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	gdb, err := db.Open(startCtx, cfg.DatabaseURL, db.Pool{MaxOpen: cfg.DBMaxOpenConns, MaxIdle: cfg.DBMaxIdleConns})
	if err != nil {
		logger.Error("db open failed", "error", err)
		os.Exit(1)
	}
	if err := db.Migrate(gdb); err != nil {
		logger.Error("db migrate failed", "error", err)
		os.Exit(1)
	}

	store := repo.New(gdb)
	issuer := tokens.NewIssuer(cfg.JWTSecret, cfg.RefreshSecret)

	var (
		limiter ratelimit.Limiter
		rdb     *redis.Client
		memory  *ratelimit.Memory
	)
	if cfg.RedisURL != "" {
		rdb, err = ratelimit.NewRedisClient(startCtx, cfg.RedisURL)
		if err != nil {
			logger.Error("redis connect failed", "error", err)
			os.Exit(1)
		}
		limiter = ratelimit.NewRedis(rdb, "ratelimit:login:", cfg.LoginRateLimit, cfg.LoginRateWindow)
	} else {
		memory = ratelimit.NewMemory(cfg.LoginRateLimit, cfg.LoginRateWindow)
		limiter = memory
	}

	var (
		publishers events.Fanout
		producer   *events.Producer
		auditStore *audit.Store
	)
	if len(cfg.KafkaBrokers) > 0 {
		producer = events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		publishers = append(publishers, producer)
	}
	if cfg.ESURL != "" {
		es, err := audit.NewClient(audit.ClientConfig{URL: cfg.ESURL, User: cfg.ESUser, Password: cfg.ESPassword}, logger)
		if err != nil {
			logger.Error("elasticsearch connect failed", "error", err)
			os.Exit(1)
		}
		auditStore = audit.NewStore(es, cfg.AuditIndex)
		if err := auditStore.EnsureIndex(startCtx); err != nil {
			logger.Error("audit index setup failed", "error", err)
			os.Exit(1)
		}
		publishers = append(publishers, auditStore)
	}
	var publisher events.Publisher = events.Nop{}
	if len(publishers) > 0 {
		publisher = publishers
	}

	svc := &authsvc.AuthService{
		Accounts:         store,
		Sessions:         store,
		Tokens:           issuer,
		Events:           publisher,
		RegistrationMode: cfg.RegistrationMode,
	}

	auditHandler := &handlers.AuditHandler{}
	if auditStore != nil {
		auditHandler.Store = auditStore
	}

	e := echo.New()
	e.HideBanner = true
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID(), loggingmw.RequestLogger(logger))

	httpserver.Register(e, &httpserver.Deps{
		DB:             gdb,
		AuthHandler:    &handlers.AuthHandler{Svc: svc},
		AuditHandler:   auditHandler,
		Auth:           authmw.New(svc),
		LoginLimiter:   limiter,
		TrustedProxies: cfg.TrustedProxies,
	})

	bgCtx, stopBg := context.WithCancel(context.Background())
	j := janitor.New(cfg.SessionSweepInterval, logger.With("component", "janitor"))
	j.Add("sessions", janitor.SweepFunc(store.DeleteExpiredSessions))
	if memory != nil {
		j.Add("login_limiter", memory)
	}
	janitorDone := j.Start(bgCtx)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server started", "addr", cfg.HTTPAddr, "registration_mode", cfg.RegistrationMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	go func() {
		<-quit
		logger.Warn("force exit")
		os.Exit(1)
	}()

	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	stopBg()
	<-janitorDone

	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Error("kafka close error", "error", err)
		}
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			logger.Error("redis close error", "error", err)
		}
	}
	if err := db.Close(gdb); err != nil {
		logger.Error("db close error", "error", err)
	}

	logger.Info("shutdown complete")
}
