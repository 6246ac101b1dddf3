package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pairwave/chat-backend/internal/config"
	"github.com/pairwave/chat-backend/internal/handler"
	"github.com/pairwave/chat-backend/internal/middleware"
	"github.com/pairwave/chat-backend/internal/migration"
	"github.com/pairwave/chat-backend/internal/notify"
	"github.com/pairwave/chat-backend/internal/repository"
	"github.com/pairwave/chat-backend/internal/routes"
	"github.com/pairwave/chat-backend/internal/service"
	"github.com/pairwave/chat-backend/internal/ws"
	"github.com/pairwave/chat-backend/pkg/jwt"
	pkglogger "github.com/pairwave/chat-backend/pkg/logger"
	pkgredis "github.com/pairwave/chat-backend/pkg/redis"
	pkgstorage "github.com/pairwave/chat-backend/pkg/storage"
)

// getConfigPath returns config file path based on APP_ENV environment variable
func getConfigPath() string {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("configs/config.%s.yaml", env)
}

func main() {
	dotenvFiles := config.LoadDotEnv()

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "local"
	}
	pkglogger.InitStructured(env)
	pkglogger.Info("APP_ENV=%s, loaded env files: %v", env, dotenvFiles)

	configPath := getConfigPath()
	pkglogger.Info("Loading config from: %s", configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	config.LogResolved(cfg)

	// MySQL
	db, err := initDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	pkglogger.Info("Connected to MySQL")
	if err := migration.Run(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	// Redis (optional: rate limiting + WebSocket fan-out across instances)
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
		)
		if err != nil {
			pkglogger.Info("Warning: Redis unavailable: %v (continuing without Redis)", err)
			redisClient = nil
		} else {
			pkglogger.Info("Connected to Redis")
		}
	}

	// Blob storage
	blobs, err := initStorage(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	// WebSocket hub
	hub := ws.NewHub(redisClient)
	go hub.Run()

	// Notification pipeline (optional)
	var notifier service.Notifier
	if cfg.AMQP.Enabled {
		amqpNotifier, err := notify.NewAMQPNotifier(notify.AMQPConfig{
			Host:     cfg.AMQP.Host,
			Port:     cfg.AMQP.Port,
			User:     cfg.AMQP.User,
			Password: cfg.AMQP.Password,
			Queue:    cfg.AMQP.Queue,
		})
		if err != nil {
			pkglogger.Info("Warning: RabbitMQ unavailable: %v (continuing without notifications)", err)
		} else {
			notifier = amqpNotifier
			defer amqpNotifier.Close()
		}
	}

	jwtManager := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.ExpiresIn)

	// Repositories, services, handlers
	roomRepo := repository.NewRoomRepository(db)
	messageService := service.NewMessageService(roomRepo, blobs, hub, notifier, cfg.Chat.NotifyThrottle)
	seenService := service.NewSeenService(roomRepo, hub)

	chatHandler := handler.NewChatHandler(messageService, seenService)
	streamHandler := handler.NewStreamHandler(roomRepo, blobs)
	wsHandler := handler.NewWSHandler(hub, cfg.CORS.AllowOrigins)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.MaxMultipartMemory = cfg.Chat.MaxUploadMB << 20

	// CORS
	allowOrigins := cfg.CORS.AllowOrigins
	if allowOrigins == "" {
		allowOrigins = "http://localhost:3000"
	}
	corsConfig := cors.Config{
		AllowOrigins:     splitAndTrim(allowOrigins, ","),
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "Range", "X-Request-ID"},
		AllowCredentials: true,
		AllowMethods:     []string{"GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Remaining", "Content-Range", "Accept-Ranges"},
		MaxAge:           86400,
	}
	router.Use(cors.New(corsConfig))

	// Middleware
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.Metrics())
	router.Use(middleware.RequestLogger())
	if redisClient != nil && !cfg.IsDevelopment() {
		router.Use(middleware.RateLimit(redisClient, middleware.RateLimitConfig{
			RequestsPerMinute: cfg.Chat.RequestsPerMinute,
			KeyPrefix:         "chat:ratelimit:",
			Message:           "Too many requests. Please try again later.",
		}))
	}

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "chat-backend",
			"time":    time.Now().Unix(),
		})
	})

	routes.Setup(router, chatHandler, streamHandler, wsHandler, jwtManager)

	// Start server with graceful shutdown
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		pkglogger.Info("Server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	pkglogger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		pkglogger.Error("Forced shutdown: %v", err)
	}
	hub.Stop()
	pkglogger.Info("Server stopped")
}

// splitAndTrim splits a string by delimiter and trims spaces
func splitAndTrim(s string, delimiter string) []string {
	parts := []string{}
	for _, part := range strings.Split(s, delimiter) {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// initStorage builds the configured blob store
func initStorage(cfg *config.Config) (pkgstorage.Blob, error) {
	if cfg.Storage.Driver == "s3" {
		return pkgstorage.NewS3Store(pkgstorage.S3Config{
			Endpoint:        cfg.Storage.Endpoint,
			Region:          cfg.Storage.Region,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			Bucket:          cfg.Storage.Bucket,
			BasePath:        cfg.Storage.BasePath,
			ForcePathStyle:  cfg.Storage.ForcePathStyle,
		})
	}
	return pkgstorage.NewLocalStore(cfg.Storage.LocalDir)
}

// initDB opens the MySQL connection
func initDB(cfg *config.Config) (*gorm.DB, error) {
	mysqlCfg, err := mysqldriver.ParseDSN(cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	gormLogLevel := gormlogger.Warn
	if cfg.IsDevelopment() {
		gormLogLevel = gormlogger.Info
	}

	db, err := gorm.Open(mysql.Open(mysqlCfg.FormatDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormLogLevel),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)

	return db, nil
}
