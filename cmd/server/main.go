package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"pixrepo/internal/bootstrap"
	"pixrepo/internal/catalog"
	"pixrepo/internal/config"
	apphttp "pixrepo/internal/http"
	"pixrepo/internal/uploader"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	bootstrap.ConfigureLogger(logger, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup: %v", err)
	}
	defer svc.Close()

	sourceService, batchService, authService := svc.Sources, svc.Batches, svc.Auth
	if !authService.Enabled() {
		logger.Warn("auth.passwordhash is empty; the API is unauthenticated")
	}
	store := catalog.NewStore()

	manager := uploader.NewManager(uploader.Config{
		MaxConcurrent: cfg.Upload.MaxConcurrentBatches,
		Logger:        logger,
	}, sourceService, batchService, store)
	if err := manager.Start(ctx); err != nil {
		logger.Fatalf("start manager: %v", err)
	}
	if err := manager.Recover(ctx); err != nil {
		logger.Warnf("recover batches: %v", err)
	}

	var proxy *apphttp.GiteeProxy
	if cfg.Providers.Gitee.Proxy {
		proxy = apphttp.NewGiteeProxy(cfg.Providers.Gitee.RawBase, cfg.HTTP.Timeout, logger)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(apphttp.Dependencies{
		Sources:       sourceService,
		Batches:       batchService,
		Manager:       manager,
		Auth:          authService,
		Catalog:       store,
		Proxy:         proxy,
		MaxUploadSize: cfg.Upload.MaxFileSize,
		Logger:        logger,
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	manager.Shutdown()

	logger.Info("bye")
}
