package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xela07ax/aegis-vault/internal/app"
	"github.com/xela07ax/aegis-vault/internal/console/handler"
	"github.com/xela07ax/aegis-vault/internal/console/server"
	"github.com/xela07ax/aegis-vault/internal/console/service"
	"github.com/xela07ax/aegis-vault/internal/domain"
	"github.com/xela07ax/aegis-vault/internal/infra"
)

func main() {
	issueFor := flag.String("issue-token", "", "выпустить dev-токен для адреса и выйти")
	scopes := flag.String("scopes", domain.ScopeManage+","+domain.ScopeApprove, "scopes dev-токена через запятую")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if *issueFor != "" {
		if err := issueToken(cfg.Auth, *issueFor, *scopes); err != nil {
			log.Fatalf("issue token: %v", err)
		}
		return
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	appCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := infra.InitTracing(appCtx, cfg.Tracing)
	if err != nil {
		logger.Fatal("tracing init failed", zap.Error(err))
	}

	// 1. Инициализация ресурсов и ядра
	rt, err := app.Bootstrap(appCtx, cfg, logger)
	if err != nil {
		logger.Fatal("bootstrap failed", zap.Error(err))
	}
	defer rt.Close()

	// 2. Инициализация слоев (Dependency Injection)
	vaults := service.NewVaultService(rt.Engine, logger)
	approvals := service.NewApprovalService(rt.Engine, vaults, logger)
	audits := service.NewAuditService(rt.AuditLog, vaults)

	api := server.NewConsoleServer(logger, rt.Validator,
		handler.NewVaultHandler(vaults),
		handler.NewApprovalHandler(approvals),
		handler.NewAuditHandler(audits),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(rt.Registry, promhttp.HandlerOpts{}))
	mux.Handle("/", api)

	// 3. Запуск сервера
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Info("console API started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("console API stopped", zap.Error(err))
			cancel()
		}
	}()

	<-appCtx.Done()
	logger.Info("console stopping")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown failed", zap.Error(err))
	}
	logger.Info("console exited properly")
}

// issueToken токены в проде выпускает identity-слой, это только для dev-стенда
func issueToken(cfg infra.AuthConfig, address, scopes string) error {
	signer, err := app.Signer(cfg)
	if err != nil {
		return err
	}
	var list []string
	for _, s := range strings.Split(scopes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			list = append(list, s)
		}
	}
	tok, err := signer.Issue(address, list...)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}
