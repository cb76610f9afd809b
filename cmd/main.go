package main

import (
	"CatalogAuth/config"
	"CatalogAuth/config/server"
	"CatalogAuth/internal/handler"
	"CatalogAuth/internal/logging"
	"CatalogAuth/internal/metrics"
	"CatalogAuth/internal/notifier"
	"CatalogAuth/internal/security"
	"CatalogAuth/internal/service"
	"CatalogAuth/internal/verifier"
	"context"
	"flag"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	configPath := flag.String("config", envOr("CONFIG_PATH", "config/config.yaml"), "путь к файлу конфигурации")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("не удалось загрузить конфигурацию: %v", err)
	}

	logger := logging.New(cfg.Server.Environment)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	admin, err := security.NewAdminIdentity(cfg.Admin.Username, cfg.Admin.Password, cfg.Admin.PasswordHash)
	if err != nil {
		logger.Error(ctx, "невалидные учетные данные администратора", "error", err)
		os.Exit(1)
	}

	store, closeStore, err := server.SetupRecordStore(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "не удалось подключиться к хранилищу", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	sessionMetrics := metrics.NewSession(registry)

	codec := security.NewCodec([]byte(cfg.JWT.AccessSecret), []byte(cfg.JWT.RefreshSecret), cfg.JWT.AccessTokenTTL, cfg.JWT.RefreshTokenTTL)

	options := []service.Option{
		service.WithLogger(logger),
		service.WithMetrics(sessionMetrics),
		service.WithRecordRecovery(cfg.RecoveryEnabled()),
	}
	if cfg.Webhook.URL != "" {
		options = append(options, service.WithNotifier(notifier.NewWebhookNotifier(cfg.Webhook.URL, cfg.Webhook.Timeout)))
	}
	if !cfg.RecoveryEnabled() {
		logger.Info(ctx, "refresh record recovery disabled")
	}
	sessionService := service.NewSessionService(store, codec, admin, options...)

	cookies := handler.CookiePolicy{
		Secure:     cfg.CookiesSecure(),
		AccessTTL:  cfg.JWT.AccessTokenTTL,
		RefreshTTL: cfg.JWT.RefreshTokenTTL,
	}
	sessionVerifier := verifier.New(codec, sessionService, sessionMetrics)
	authenticationHandler := handler.NewAuthenticationHandler(sessionService, sessionService, cookies, logger, cfg.Server.RequestTimeout, cfg.Store.Backend)

	httpServer, router := server.SetupServer(cfg.Server)
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(handler.RequestLogger(logger))
	router.Use(middleware.Recoverer)

	authenticationHandler.Mount(router, handler.RequireSession(sessionVerifier, cookies, logger))
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	runServer(ctx, httpServer, logger)
}

func runServer(ctx context.Context, server *http.Server, logger logging.Logger) {
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info(ctx, "сервер запущен", "address", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "ошибка работы сервера", "error", err)
			return
		}
	case sig := <-signalChannel:
		logger.Info(ctx, "получен сигнал остановки работы сервера", "signal", sig.String())
	}

	shutDownCtx, shutDownCancel := context.WithTimeout(ctx, 5*time.Second)
	defer shutDownCancel()

	if err := server.Shutdown(shutDownCtx); err != nil {
		logger.Error(ctx, "ошибка при остановке сервера", "error", err)
	} else {
		logger.Info(ctx, "сервер успешно остановлен")
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
