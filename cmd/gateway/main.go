package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/xela07ax/aegis-vault/internal/app"
	"github.com/xela07ax/aegis-vault/internal/domain"
	"github.com/xela07ax/aegis-vault/internal/engine"
	"github.com/xela07ax/aegis-vault/internal/infra"
)

func main() {
	// .env опционален: в K8s все приходит через ENV
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Контекст жизненного цикла: SIGTERM остановит слушателей и серверы
	appCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := infra.InitTracing(appCtx, cfg.Tracing)
	if err != nil {
		logger.Fatal("tracing init failed", zap.Error(err))
	}

	// 1. Ядро: хранилище, журнал, исполнитель с надежностью
	rt, err := app.Bootstrap(appCtx, cfg, logger)
	if err != nil {
		logger.Fatal("bootstrap failed", zap.Error(err))
	}
	defer rt.Close()

	// 2. Control Plane: L1 кэш выключенных хранилищ
	var freeze *engine.FreezeManager
	if rt.Redis != nil {
		freeze = engine.NewFreezeManager(rt.Redis, logger)
		if err := freeze.Warmup(appCtx, rt.Store); err != nil {
			logger.Fatal("freeze cache warmup failed", zap.Error(err))
		}
		go freeze.Run(appCtx)
	}

	// 3. Метрики для Prometheus
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(rt.Registry, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: cfg.Gateway.MetricsAddr(), Handler: metricsMux, ReadHeaderTimeout: 5 * time.Second}

	// 4. HTTP: Trace -> JWT -> scope -> freeze -> движок
	gw := engine.NewGateway(rt.Engine, logger)
	srv := &http.Server{
		Addr:         cfg.Gateway.HTTPAddr(),
		Handler:      gw.Routes(rt.Validator, freeze),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 5. gRPC шлюза
	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(engine.UnaryAuthInterceptor(rt.Validator, domain.ScopeSubmit)))
	engine.RegisterGatewayService(grpcSrv, engine.NewGRPCGatewayServer(rt.Engine))

	lis, err := net.Listen("tcp", cfg.Gateway.GRPCAddr())
	if err != nil {
		logger.Fatal("failed to listen gRPC", zap.Error(err))
	}
	go func() {
		logger.Info("gateway gRPC server started", zap.String("addr", lis.Addr().String()))
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("gRPC server stopped", zap.Error(err))
			cancel()
		}
	}()

	for _, s := range []*http.Server{srv, metricsSrv} {
		go func(s *http.Server) {
			logger.Info("http server started", zap.String("addr", s.Addr))
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server stopped", zap.String("addr", s.Addr), zap.Error(err))
				cancel()
			}
		}(s)
	}

	<-appCtx.Done()
	logger.Info("gateway stopping")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
	_ = metricsSrv.Shutdown(shutdownCtx)
	grpcSrv.GracefulStop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown failed", zap.Error(err))
	}
	logger.Info("gateway exited properly")
}
