package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	catalogentity "github.com/vastraworks/vastra/internal/catalog/entity"
	cataloghandler "github.com/vastraworks/vastra/internal/catalog/handler"
	catalogrepo "github.com/vastraworks/vastra/internal/catalog/repository"
	catalogsvc "github.com/vastraworks/vastra/internal/catalog/service"
	"github.com/vastraworks/vastra/internal/config"
	identityentity "github.com/vastraworks/vastra/internal/identity/entity"
	identityhandler "github.com/vastraworks/vastra/internal/identity/handler"
	identityrepo "github.com/vastraworks/vastra/internal/identity/repository"
	identitysvc "github.com/vastraworks/vastra/internal/identity/service"
	"github.com/vastraworks/vastra/internal/middleware"
	notifentity "github.com/vastraworks/vastra/internal/notification/entity"
	notifhandler "github.com/vastraworks/vastra/internal/notification/handler"
	notifsvc "github.com/vastraworks/vastra/internal/notification/service"
	orderentity "github.com/vastraworks/vastra/internal/order/entity"
	orderhandler "github.com/vastraworks/vastra/internal/order/handler"
	orderrepo "github.com/vastraworks/vastra/internal/order/repository"
	ordersvc "github.com/vastraworks/vastra/internal/order/service"
	syncentity "github.com/vastraworks/vastra/internal/sync/entity"
	synchandler "github.com/vastraworks/vastra/internal/sync/handler"
	syncrepo "github.com/vastraworks/vastra/internal/sync/repository"
	syncsvc "github.com/vastraworks/vastra/internal/sync/service"
	uploadhandler "github.com/vastraworks/vastra/internal/upload/handler"
	uploadsvc "github.com/vastraworks/vastra/internal/upload/service"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting vastra service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	// 初始化数据库
	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	if err := db.AutoMigrate(
		&identityentity.Organization{},
		&identityentity.User{},
		&catalogentity.Product{},
		&catalogentity.ColorVariant{},
		&catalogentity.SizeStock{},
		&catalogentity.StockMovement{},
		&orderentity.WholesaleOrder{},
		&orderentity.OrderItem{},
		&orderentity.OrderSyncRequest{},
		&orderentity.BuyerLink{},
		&syncentity.SyncLedgerEntry{},
		&syncentity.FactoryReceiving{},
		&notifentity.Notification{},
	); err != nil {
		zapLogger.Warn("AutoMigrate warning", zap.Error(err))
	}
	zapLogger.Info("Database migration completed")

	// 初始化Redis
	rdb := initRedis(cfg.Redis)

	// 初始化MinIO
	minioClient, err := initMinio(cfg.MinIO)
	if err != nil {
		zapLogger.Warn("MinIO unavailable, file upload disabled", zap.Error(err))
	}

	// 仓库
	userRepo := identityrepo.NewUserRepository(db)
	orgRepo := identityrepo.NewOrganizationRepository(db)
	productRepo := catalogrepo.NewProductRepository(db)
	orderRepo := orderrepo.NewOrderRepository(db)
	buyerRepo := orderrepo.NewBuyerRepository(db)
	syncRepo := syncrepo.NewSyncRepository(db)

	// 服务
	authSvc := identitysvc.NewAuthService(userRepo, orgRepo, cfg)
	productSvc := catalogsvc.NewProductService(productRepo)
	notificationSvc := notifsvc.NewNotificationService(db, rdb, zapLogger)
	orderLock := syncsvc.NewOrderLock(rdb, cfg.Sync.LockTTL)
	engine := syncsvc.NewSyncEngine(db, orderLock, syncRepo, orderRepo, buyerRepo, userRepo, orgRepo, notificationSvc, zapLogger, cfg.Sync.EditWindow)
	orderSvc := ordersvc.NewOrderService(orderRepo, buyerRepo, orgRepo, engine, zapLogger, cfg.Sync.EditWindow)
	uploadSvc := uploadsvc.NewUploadService(minioClient, cfg.MinIO.Bucket, orderRepo)

	// 处理器
	authHandler := identityhandler.NewAuthHandler(authSvc)
	productHandler := cataloghandler.NewProductHandler(productSvc)
	orderHandler := orderhandler.NewOrderHandler(orderSvc)
	syncHandler := synchandler.NewSyncHandler(engine)
	notificationHandler := notifhandler.NewNotificationHandler(notificationSvc)
	uploadHandler := uploadhandler.NewUploadHandler(uploadSvc)

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	registerRoutes(router, cfg, authHandler, productHandler, orderHandler, syncHandler, notificationHandler, uploadHandler)

	// 创建HTTP服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 启动服务器
	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func initMinio(cfg config.MinIOConfig) (*minio.Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint not configured")
	}
	return minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
}

func registerRoutes(
	r *gin.Engine,
	cfg *config.Config,
	authH *identityhandler.AuthHandler,
	productH *cataloghandler.ProductHandler,
	orderH *orderhandler.OrderHandler,
	syncH *synchandler.SyncHandler,
	notifH *notifhandler.NotificationHandler,
	uploadH *uploadhandler.UploadHandler,
) {
	// 健康检查
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 版本信息
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	v1 := r.Group("/api/v1")
	{
		// 认证 (无需登录)
		auth := v1.Group("/auth")
		{
			auth.POST("/register", authH.Register)
			auth.POST("/login", authH.Login)
			auth.POST("/refresh", authH.Refresh)
		}

		// 需要认证的路由
		authed := v1.Group("")
		authed.Use(middleware.JWTAuth(cfg.JWT.Secret))
		{
			authed.GET("/auth/me", authH.Me)

			// 款号与库存
			products := authed.Group("/products")
			{
				products.GET("", productH.List)
				products.POST("", productH.Create)
				products.GET("/alerts", productH.Alerts)
				products.POST("/stock/adjust", productH.AdjustStock)
				products.GET("/stock/movements", productH.Movements)
				products.GET("/:id", productH.Get)
				products.DELETE("/:id", productH.Delete)
			}

			// 批发订单
			orders := authed.Group("/orders")
			{
				orders.GET("", orderH.List)
				orders.POST("", orderH.Create)
				orders.GET("/:id", orderH.Get)
				orders.PUT("/:id", orderH.Update)
				orders.DELETE("/:id", orderH.Delete)
				orders.POST("/:id/challan", uploadH.UploadChallan)
				orders.GET("/:id/challan", uploadH.DownloadChallan)
			}

			// 买家目录
			buyers := authed.Group("/buyers")
			{
				buyers.GET("", orderH.ListBuyers)
				buyers.POST("", orderH.CreateBuyer)
				buyers.PUT("/:contact/preference", orderH.SetBuyerPreference)
				buyers.POST("/:contact/link", orderH.LinkBuyer)
			}

			// 同步
			sync := authed.Group("/sync")
			{
				sync.GET("/pending", syncH.Pending)
				sync.POST("/:syncId/accept", syncH.Accept)
				sync.POST("/:syncId/reject", syncH.Reject)
				sync.POST("/resend/:orderId", syncH.Resend)
				sync.GET("/received-from-supplier", syncH.Received)
				sync.GET("/supplier-logs", middleware.RequireRole("admin"), syncH.SupplierLogs)
				sync.GET("/supplier-logs/export", middleware.RequireRole("admin"), syncH.ExportSupplierLogs)
			}

			// 通知
			notifications := authed.Group("/notifications")
			{
				notifications.GET("", notifH.List)
				notifications.GET("/unread-count", notifH.UnreadCount)
				notifications.PUT("/read-all", notifH.MarkAllRead)
				notifications.PUT("/:id/read", notifH.MarkRead)
			}
		}
	}
}
