package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/JillVernus/feature-gate/internal/config"
	"github.com/JillVernus/feature-gate/internal/handlers"
	"github.com/JillVernus/feature-gate/internal/limits"
	"github.com/JillVernus/feature-gate/internal/logger"
	"github.com/JillVernus/feature-gate/internal/middleware"
	"github.com/JillVernus/feature-gate/internal/notify"
	"github.com/JillVernus/feature-gate/internal/quota"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// 加载环境变量
	if err := godotenv.Load(); err != nil {
		log.Println("没有找到 .env 文件，使用环境变量或默认值")
	}

	// 设置版本信息到 handlers 包
	handlers.SetVersionInfo(Version, BuildTime, GitCommit)

	// 初始化环境配置
	envCfg := config.NewEnvConfig()

	// 🔒 安全检查：禁止空访问密钥（除非显式允许）
	// 防止因 ENV 配置错误导致配额 API 无保护暴露
	if envCfg.GateAccessKey == "" {
		if os.Getenv("ALLOW_INSECURE_NO_KEY") == "true" && envCfg.IsDevelopment() {
			log.Println("⚠️ 警告: 未设置 GATE_ACCESS_KEY，仅限本地开发使用")
		} else {
			log.Fatal("🚨 安全错误: 必须设置 GATE_ACCESS_KEY。请在 .env 文件中设置强密钥，或在开发环境设置 ALLOW_INSECURE_NO_KEY=true")
		}
	} else if len(envCfg.GateAccessKey) < 16 {
		log.Fatal("🚨 安全错误: GATE_ACCESS_KEY 必须至少16个字符。当前长度:", len(envCfg.GateAccessKey))
	}

	// 初始化日志系统（必须在其他初始化之前）
	logCfg := &logger.Config{
		LogDir:     envCfg.LogDir,
		LogFile:    envCfg.LogFile,
		MaxSize:    envCfg.LogMaxSize,
		MaxBackups: envCfg.LogMaxBackups,
		MaxAge:     envCfg.LogMaxAge,
		Compress:   envCfg.LogCompress,
		Console:    envCfg.LogToConsole,
	}
	if err := logger.Setup(logCfg); err != nil {
		log.Fatalf("初始化日志系统失败: %v", err)
	}

	// 初始化限额配置管理器（文件变更自动热重载）
	cfgManager, err := limits.NewConfigManager(filepath.Join(envCfg.ConfigDir, "limits.json"))
	if err != nil {
		log.Fatalf("初始化限额配置管理器失败: %v", err)
	}

	// 初始化配额存储（json | database | redis）
	store, storeClose := InitStorage(envCfg)

	// 初始化配额注册表（每个功能一个管理器）
	registry := quota.NewRegistry(store, cfgManager)

	// SSE/WebSocket 事件广播器
	broadcaster := notify.NewBroadcaster()

	// 后台冷却到期通知器
	// 必须在 Preload 之前挂上调度器，恢复的进行中冷却才会重新挂起
	notifier := notify.NewExpiryNotifier(registry, broadcaster)
	registry.SetScheduler(notifier)
	if err := registry.Preload(); err != nil {
		log.Printf("⚠️ 恢复配额状态失败: %v (从空状态开始)", err)
	}
	notifier.Start()
	log.Printf("✅ 配额注册表已初始化 (功能数: %d, 当前档位: %s)",
		len(registry.Features()), cfgManager.ActiveTier())

	// 限额配置变更回调：同步各功能管理器并推送给已连接客户端
	cfgManager.SetOnChangeCallback(func(cfg limits.Config) {
		registry.Sync()
		broadcaster.Broadcast(notify.NewLimitsUpdatedEvent(cfg.ActiveTier, registry.Statuses()))
	})

	// 设置 Gin 模式
	if envCfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由器（不使用 gin.Default() 以避免默认 Logger 把 ?key= 写进访问日志）
	r := gin.New()
	r.Use(gin.Recovery())

	// 🔒 生产环境默认不信任任何代理，防止通过 X-Forwarded-For 伪造限流 IP
	if envCfg.IsProduction() {
		if err := r.SetTrustedProxies(nil); err != nil {
			log.Printf("⚠️ 禁用代理信任失败: %v", err)
		}
	}

	// 配置安全响应头
	r.Use(middleware.SecurityHeadersMiddleware())

	// 配置 CORS
	if envCfg.EnableCORS {
		r.Use(middleware.CORSMiddleware(envCfg))
	}

	// 🔒 速率限制中间件（按客户端 IP）
	var apiLimiter *middleware.RateLimiter
	if envCfg.EnableRateLimit {
		apiLimiter = middleware.NewRateLimiter(envCfg.RateLimitRPS, envCfg.RateLimitBurst)
		r.Use(middleware.RateLimitMiddleware(apiLimiter))
		log.Printf("✅ 速率限制器已初始化 (%.1f rps, burst %d)", envCfg.RateLimitRPS, envCfg.RateLimitBurst)
	}

	// 管理 API 访问控制中间件（带认证失败限制）
	authFailureLimiter := middleware.NewAuthFailureRateLimiter()
	r.Use(middleware.AccessAuthMiddleware(envCfg, authFailureLimiter))

	// 🔒 健康检查端点（最小化响应，无需认证）
	// 只返回 {"status": "healthy"}，不暴露系统信息
	r.GET(envCfg.HealthCheckPath, handlers.HealthCheck())

	// 根路由：服务信息
	r.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"name":    "Feature Gate",
			"version": Version,
			"endpoints": gin.H{
				"health":   envCfg.HealthCheckPath,
				"features": "/api/features",
				"limits":   "/api/limits",
				"events":   "/api/events",
			},
		})
	})

	gateHandler := handlers.NewGateHandler(registry, broadcaster)
	limitsHandler := handlers.NewLimitsHandler(cfgManager, registry)
	eventsHandler := handlers.NewEventsHandler(broadcaster)
	wsHandler := handlers.NewWSHandler(broadcaster)

	// 管理 API 路由
	apiGroup := r.Group("/api")
	{
		// 功能配额 API
		apiGroup.GET("/features", gateHandler.ListFeatures)
		apiGroup.POST("/features/reset", gateHandler.ResetAllFeatures)
		apiGroup.GET("/features/:feature", gateHandler.GetFeature)
		apiGroup.GET("/features/:feature/check", gateHandler.CheckFeature)
		apiGroup.POST("/features/:feature/consume", gateHandler.Consume)
		apiGroup.POST("/features/:feature/cooldown", gateHandler.StartCooldown)
		apiGroup.POST("/features/:feature/reset", gateHandler.ResetFeature)

		// 限额配置 API
		apiGroup.GET("/limits", limitsHandler.GetLimits)
		apiGroup.PUT("/limits", limitsHandler.UpdateLimits)
		apiGroup.PATCH("/limits", limitsHandler.PatchLimits)
		apiGroup.POST("/limits/tier", limitsHandler.SetTier)
		apiGroup.POST("/limits/reset", limitsHandler.ResetLimits)
		apiGroup.POST("/limits/reload", handlers.ReloadLimits(cfgManager))

		// 事件推送 API（SSE 和 WebSocket 两种通道）
		apiGroup.GET("/events", eventsHandler.Stream)
		apiGroup.GET("/events/recent", eventsHandler.Recent)
		apiGroup.GET("/ws", wsHandler.Stream)

		// 详细健康检查端点（需要认证，返回完整系统信息）
		apiGroup.GET("/health/details", handlers.HealthCheckDetailed(envCfg, cfgManager, registry))

		// 开发信息端点
		if envCfg.IsDevelopment() {
			apiGroup.GET("/dev/info", handlers.DevInfo(envCfg, cfgManager))
		}
	}

	// 启动服务器
	addr := fmt.Sprintf(":%d", envCfg.Port)
	fmt.Printf("\n🚀 Feature Gate 服务器已启动\n")
	fmt.Printf("📌 版本: %s\n", Version)
	if BuildTime != "unknown" {
		fmt.Printf("🕐 构建时间: %s\n", BuildTime)
	}
	if GitCommit != "unknown" {
		fmt.Printf("🔖 Git提交: %s\n", GitCommit)
	}
	fmt.Printf("📍 API 地址: http://localhost:%d/api\n", envCfg.Port)
	fmt.Printf("📋 功能状态: GET /api/features\n")
	fmt.Printf("📋 记录用量: POST /api/features/:feature/consume\n")
	fmt.Printf("📡 事件推送: GET /api/events (SSE) | GET /api/ws (WebSocket)\n")
	fmt.Printf("💚 健康检查: GET %s\n", envCfg.HealthCheckPath)
	fmt.Printf("📊 环境: %s | 存储: %s | 档位: %s\n", envCfg.Env, envCfg.StorageType, cfgManager.ActiveTier())
	fmt.Printf("\n")

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// 优雅停机：SIGINT/SIGTERM 时先断开事件流，再关闭 HTTP 服务器
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Printf("🛑 收到停机信号，正在关闭...")

		// 关闭订阅通道，长连接的 SSE/WS 处理器随之退出
		broadcaster.CloseAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("⚠️ HTTP 服务器关闭失败: %v", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("服务器启动失败: %v", err)
	}

	// HTTP 停止后清理后台组件
	notifier.Stop()
	authFailureLimiter.Stop()
	if apiLimiter != nil {
		apiLimiter.Stop()
	}
	if err := cfgManager.Close(); err != nil {
		log.Printf("⚠️ 限额配置管理器关闭失败: %v", err)
	}
	if storeClose != nil {
		if err := storeClose(); err != nil {
			log.Printf("⚠️ 配额存储关闭失败: %v", err)
		}
	}
	log.Printf("✅ 服务器已退出")
}
