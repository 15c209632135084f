package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashwinyue/docsearch/internal/config"
	"github.com/ashwinyue/docsearch/internal/database"
	"github.com/ashwinyue/docsearch/internal/handler"
	"github.com/ashwinyue/docsearch/internal/pkg/logger"
	"github.com/ashwinyue/docsearch/internal/router"
	"github.com/ashwinyue/docsearch/internal/service"
	"github.com/gin-gonic/gin"
)

func main() {
	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLog, err := logger.New(cfg.Server.Mode, cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer appLog.Sync()

	// 设置 Gin 模式
	gin.SetMode(cfg.Server.Mode)

	// 初始化数据库
	db, err := database.New(cfg)
	if err != nil {
		appLog.Fatal("failed to init database", "error", err)
	}
	defer db.Close()

	appLog.Info("database connected", "driver", cfg.Database.Driver)

	// 初始化各层
	ctx := context.Background()
	services, err := service.NewServices(ctx, cfg, db.DB, appLog)
	if err != nil {
		appLog.Fatal("failed to init services", "error", err)
	}
	defer func() {
		if err := services.Close(); err != nil {
			appLog.Warn("failed to close services", "error", err)
		}
	}()

	if services.Workers != nil {
		services.Workers.Start(ctx)
	}

	handlers := handler.NewHandlers(services, db)

	// 初始化路由
	r := router.SetupRouter(handlers, appLog, cfg.Upload.MaxFileSize())

	// 创建 HTTP 服务器
	srv := &http.Server{
		Addr:         cfg.Server.GetAddr(),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// 启动服务器
	go func() {
		appLog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("server error", "error", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("shutting down server")

	// 优雅关闭，工作池在 services.Close 中等待进行中的任务
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("server forced to shutdown", "error", err)
	}

	appLog.Info("server exited")
}
