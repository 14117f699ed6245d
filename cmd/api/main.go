package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AdolfoEscobar473/hospital/internal/accounts"
	"github.com/AdolfoEscobar473/hospital/internal/audit"
	"github.com/AdolfoEscobar473/hospital/internal/auth"
	"github.com/AdolfoEscobar473/hospital/internal/config"
	"github.com/AdolfoEscobar473/hospital/internal/httpapi"
	"github.com/AdolfoEscobar473/hospital/internal/obs"
	"github.com/AdolfoEscobar473/hospital/internal/rbac"
	"github.com/AdolfoEscobar473/hospital/internal/records"
	"github.com/AdolfoEscobar473/hospital/internal/reporting"
	"github.com/AdolfoEscobar473/hospital/internal/sessions"
	"github.com/AdolfoEscobar473/hospital/pkg/logger"
	"github.com/AdolfoEscobar473/hospital/pkg/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A missing .env is fine; real deployments inject the environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	obs.Init()

	tokens, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}
	hasher, err := auth.NewHasher(cfg.Auth.BcryptCost)
	if err != nil {
		log.Error("password hasher init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	auditSvc := audit.NewService(audit.NewPGRepo(db))

	var notifier accounts.Notifier = accounts.LogNotifier{Log: log}
	if cfg.Mail.Host != "" {
		notifier = accounts.NewSMTPNotifier(cfg.Mail)
	}

	accountSvc := accounts.NewService(
		accounts.NewPGStore(db),
		sessions.NewPGLedger(db),
		tokens,
		hasher,
		accounts.WithAudit(auditSvc),
		accounts.WithNotifier(notifier),
		accounts.WithAttemptLimiter(accounts.NewRedisThrottle(rdb, cfg.Auth.LoginMaxAttempts, cfg.Auth.LoginAttemptWindow)),
		accounts.WithForgotPasswordInBand(cfg.Auth.ForgotPasswordInBand),
		accounts.WithLogger(log),
	)
	recordSvc := records.NewService(records.NewPGRepo(db), auditSvc)

	h := httpapi.Handlers{
		Accounts: accountSvc,
		Policy:   rbac.NewPolicyTable(rbac.NewPGPolicyStore(db)),
		Records:  recordSvc,
		Reports:  reporting.NewService(recordSvc, accountSvc),
		Audit:    auditSvc,
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(obs.Middleware())
	if len(cfg.App.CORSAllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.App.CORSAllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-Id"},
			ExposeHeaders:    []string{"X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/metrics", gin.WrapH(obs.Handler()))
	r.GET("/readyz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	httpapi.RegisterRoutes(r, h, httpapi.Deps{
		Tokens:  tokens,
		Roles:   accountSvc,
		Limiter: httpapi.NewIPRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
