package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"sudooom.im.chatroom/internal/config"
	"sudooom.im.chatroom/internal/handler"
	"sudooom.im.chatroom/internal/health"
	"sudooom.im.chatroom/internal/middleware"
	imNats "sudooom.im.chatroom/internal/nats"
	"sudooom.im.chatroom/internal/repository"
	"sudooom.im.chatroom/internal/router"
	"sudooom.im.chatroom/internal/service"
	"sudooom.im.chatroom/internal/storage"
	"sudooom.im.chatroom/pkg/jwt"
	"sudooom.im.chatroom/pkg/snowflake"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.App.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("Chatroom exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// 创建上下文
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 连接数据库
	db, err := connectDatabase(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL", "host", cfg.Database.Host)

	if cfg.Database.AutoMigrate {
		if err := repository.Migrate(ctx, db); err != nil {
			return err
		}
		logger.Info("Database schema applied")
	}

	// 连接 Redis
	redisClient := connectRedis(cfg.Redis)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	logger.Info("Connected to Redis", "addr", cfg.Redis.Addr())

	// 单实例部署时在进程内启动 NATS
	if cfg.NATS.Embedded {
		embedded, err := imNats.NewEmbeddedServer(cfg.NATS.EmbeddedHost, cfg.NATS.EmbeddedPort)
		if err != nil {
			return fmt.Errorf("start embedded nats: %w", err)
		}
		defer embedded.Shutdown()
		cfg.NATS.URL = embedded.ClientURL()
		logger.Info("Embedded NATS started", "url", cfg.NATS.URL)
	}

	// 连接 NATS
	natsClient, err := imNats.NewClient(cfg.NATS)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer natsClient.Close()
	logger.Info("Connected to NATS", "url", cfg.NATS.URL)

	// 对象存储
	blobs, err := storage.NewS3Store(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	// 初始化雪花ID生成器
	sfNode, err := snowflake.NewNode(cfg.App.NodeID)
	if err != nil {
		return fmt.Errorf("create snowflake node: %w", err)
	}

	jwtService := jwt.NewService(cfg.JWT.SecretKey, cfg.App.Name, cfg.JWT.AccessExpire, cfg.JWT.RefreshExpire)

	// 初始化 Repository
	tx := repository.NewTxManager(db)
	userRepo := repository.NewUserRepository(db)
	friendRepo := repository.NewFriendRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	messageRepo := repository.NewMessageRepository(db, tx)
	tokenRepo := repository.NewTokenRepository(redisClient)
	conversationRepo := repository.NewConversationRepository(redisClient)

	// 初始化 Service
	publisher := imNats.NewChangePublisher(natsClient.Conn())
	feed := imNats.NewChangeFeed(natsClient.Conn())
	opts := service.Options{
		OperationTimeout: cfg.App.OperationTimeout,
		StreamBuffer:     cfg.Stream.BufferSize,
	}
	maxUpload := cfg.Storage.MaxUploadSize

	authService := service.NewAuthService(userRepo, tokenRepo, jwtService, sfNode, opts)
	directoryService := service.NewDirectoryService(userRepo, blobs, publisher, feed, maxUpload, opts)
	friendService := service.NewFriendService(userRepo, friendRepo, tx, sfNode, publisher, feed, opts)
	groupService := service.NewGroupService(groupRepo, userRepo, tx, sfNode, blobs, publisher, feed, maxUpload, opts)
	messageService := service.NewMessageService(messageRepo, userRepo, groupRepo, sfNode, blobs, publisher, feed, maxUpload, opts)
	notificationService := service.NewNotificationService(messageService, userRepo, opts)
	conversationService := service.NewConversationService(conversationRepo, opts)
	mediaService := service.NewMediaService(blobs, maxUpload, opts)

	// 会话列表索引
	indexer := imNats.NewConversationSubscriber(natsClient.Conn(), conversationService, imNats.SubscriberConfig{
		WorkerCount: cfg.NATS.IndexWorkers,
		BufferSize:  cfg.NATS.IndexQueue,
	})
	if err := indexer.Start(ctx); err != nil {
		return fmt.Errorf("start conversation indexer: %w", err)
	}
	defer indexer.Stop()

	// 初始化 Handler
	handlers := router.Handlers{
		Auth:         handler.NewAuthHandler(authService),
		User:         handler.NewUserHandler(directoryService, maxUpload),
		Friend:       handler.NewFriendHandler(friendService, directoryService),
		Group:        handler.NewGroupHandler(groupService, maxUpload),
		Chat:         handler.NewChatHandler(messageService, maxUpload),
		Conversation: handler.NewConversationHandler(conversationService),
		Media:        handler.NewMediaHandler(mediaService, maxUpload),
		Stream: handler.NewStreamHandler(directoryService, friendService, groupService, messageService, notificationService, handler.StreamOptions{
			PingInterval:   cfg.Stream.PingInterval,
			WriteTimeout:   cfg.Stream.WriteTimeout,
			OriginPatterns: handler.OriginHosts(cfg.CORS.AllowedOrigins),
		}),
	}

	var limiter *middleware.IPRateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewIPRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
		defer limiter.Stop()
	}

	// 设置路由
	r := router.SetupRouter(cfg, authService, limiter, handlers)

	apiServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	adminServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.AdminPort),
		Handler:           health.NewChecker(natsClient.Conn(), redisClient, db).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 2)
	go serve(apiServer, "API", logger, serverErr)
	go serve(adminServer, "Admin", logger, serverErr)

	logger.Info("Chatroom started", "name", cfg.App.Name, "mode", cfg.App.Mode)

	// 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		logger.Info("Shutting down...", "signal", sig.String())
	case runErr = <-serverErr:
		logger.Error("Server failed, shutting down", "error", runErr)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	// WebSocket 连接已被劫持，Shutdown 不会等待，随 cancel 与 NATS 关闭一起结束
	for _, srv := range []*http.Server{apiServer, adminServer} {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Server shutdown incomplete", "addr", srv.Addr, "error", err)
		}
	}
	cancel()

	logger.Info("Chatroom stopped")
	return runErr
}

// serve 启动 HTTP 服务，非正常退出时写入 errc
func serve(srv *http.Server, name string, logger *slog.Logger, errc chan<- error) {
	logger.Info(name+" server started", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errc <- fmt.Errorf("%s server: %w", strings.ToLower(name), err)
	}
}

// parseLevel 解析日志级别
func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// connectDatabase 连接 PostgreSQL
func connectDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, err
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = 10 * time.Minute

	db, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.Ping(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// connectRedis 连接 Redis
func connectRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}
