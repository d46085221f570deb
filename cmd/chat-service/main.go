package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auction-chat/internal/api/handlers"
	"auction-chat/internal/config"
	"auction-chat/internal/domain"
	"auction-chat/internal/infrastructure/redis"
	"auction-chat/internal/infrastructure/rest"
	ws "auction-chat/internal/infrastructure/websocket"
	"auction-chat/internal/services"
	"auction-chat/pkg/logger"

	redisClient "github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func main() {
	log := logger.New()
	log.Info("Starting chat sync service")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	log.Info("Configuration loaded", "config", cfg.GetConfigString())

	// Initialize Redis
	rdb := redisClient.NewClient(&redisClient.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	log.Info("Connected to Redis", "address", cfg.Redis.Address)

	// Initialize collaborator REST client and snapshot cache
	chatAPI := rest.NewChatAPIClient(cfg.ChatAPI.BaseURL, cfg.ChatAPI.Timeout, log)
	snapshotCache := redis.NewSnapshotCache(rdb, chatAPI, cfg.Redis.SnapshotTTL, log)

	// Initialize bus connection manager
	dialer := ws.NewGatewayDialer(cfg.Gateway.URL, log)
	connManager := services.NewConnectionManager(dialer, services.ConnectionManagerConfig{
		ReconnectInterval: cfg.Gateway.ReconnectInterval,
		BackoffFactor:     cfg.Gateway.BackoffFactor,
		MaxReconnectDelay: cfg.Gateway.MaxReconnectDelay,
	}, log)

	// Initialize room registry
	roomRegistry := services.NewRoomRegistry(connManager, cfg.Session.UserID, log)
	defer roomRegistry.Close()

	// Initialize UI stream hub; it doubles as the notification sink
	streamHub := handlers.NewStreamHub(log)

	// Initialize core sync components
	sender := domain.Sender{ID: cfg.Session.UserID, Name: cfg.Session.UserName}
	buffer := services.NewMessageBuffer(chatAPI, sender, cfg.Sync.GraceDelay, log)
	unread := services.NewUnreadCounts()
	typing := services.NewTypingTracker(connManager, cfg.Session.UserID, cfg.Sync.TypingTTL, log)

	var engine *services.SyncEngine
	dispatcher := services.NewNotificationDispatcher(streamHub, cfg.Sync.ToastTTL, func(conversationID string) bool {
		return engine != nil && engine.IsOpenAndVisible(conversationID)
	}, log)

	engine = services.NewSyncEngine(
		services.SyncEngineConfig{
			UserID:          cfg.Session.UserID,
			UserName:        cfg.Session.UserName,
			RefetchInterval: cfg.Sync.RefetchInterval,
		},
		connManager,
		roomRegistry,
		buffer,
		unread,
		dispatcher,
		typing,
		snapshotCache,
		chatAPI,
		log,
	)

	streamHub.SetSource(engine.Subscribe)

	// Start engine (registers bus handlers, refetch cron, connects)
	if err := engine.Start(context.Background()); err != nil {
		log.Error("Failed to start sync engine", "error", err)
		os.Exit(1)
	}

	go streamHub.Run()

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{
			echo.GET, echo.HEAD, echo.PUT, echo.PATCH,
			echo.POST, echo.DELETE, echo.OPTIONS,
		},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
		},
	}))

	// API routes
	sessionHandler := handlers.NewSessionHandler(engine, log)
	sessionHandler.Register(e.Group("/api/v1"))

	// Health check endpoint
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":     "ok",
			"service":    "chat-sync",
			"connection": engine.Status().String(),
			"timestamp":  time.Now().Format(time.RFC3339),
		})
	})

	// Start UI stream server
	streamServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.StreamPort),
		Handler: streamHub.Router(),
	}

	go func() {
		log.Info("Starting UI stream server", "address", streamServer.Addr)
		if err := streamServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Stream server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Start API server
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		log.Info("Starting session API server", "address", serverAddr)
		if err := e.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down chat sync service...")

	// Graceful shutdown
	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	engine.Stop()

	if err := streamServer.Shutdown(ctx); err != nil {
		log.Error("Stream server forced to shutdown", "error", err)
	}
	if err := e.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Chat sync service stopped")
}
