package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"match-service/internal/clock"
	"match-service/internal/config"
	"match-service/internal/db"
	"match-service/internal/handlers"
	"match-service/internal/lifecycle"
	"match-service/internal/middleware"
	"match-service/internal/notify"
	"match-service/internal/observability"
	"match-service/internal/rabbitmq"
	"match-service/internal/repositories"
	"match-service/internal/rooms"
	"match-service/internal/telemetry"
	"match-service/internal/ws"
)

func main() {
	cfg := config.Load()

	shutdownTracing, err := observability.InitTracing(context.Background(), cfg.ServiceName, cfg.Environment, cfg.OTLPAddr)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.Exchange)
	defer publisher.Close()

	notifier := notify.NewNotifier(publisher)
	audit := telemetry.NewAuditEmitter(publisher, "audit.match", cfg.ServiceName, cfg.Environment)

	connectionRepo := repositories.NewConnectionRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	roomRepo := repositories.NewRoomRepo(database)
	userRepo := repositories.NewUserRepo(database)

	clk := clock.Real()
	engine := lifecycle.NewEngine(connectionRepo, userRepo, notifier, clk, cfg.RequestWindow, cfg.ChatWindow)
	gate := lifecycle.NewGate(connectionRepo, messageRepo, notifier, clk)
	scheduler := rooms.NewScheduler(roomRepo, userRepo, notifier, clk)

	hub := ws.NewHub()
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		fanout := ws.NewRedisFanout(redisClient, "match:broadcast", hub)
		fanout.Start(context.Background())
		defer redisClient.Close()
	}

	connectionHandler := handlers.NewConnectionHandler(engine, userRepo, audit, clk)
	messageHandler := handlers.NewMessageHandler(gate, userRepo, hub)
	roomHandler := handlers.NewRoomHandler(scheduler, hub, audit)

	connectionWS := ws.NewConnectionWebSocketHandler(hub, connectionRepo, publisher, cfg.JWTSecret)
	roomWS := ws.NewRoomWebSocketHandler(hub, roomRepo, publisher, cfg.JWTSecret)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	limiter := middleware.NewLimiterStore(cfg.RateLimitPerMinute, cfg.RateLimitBurst, 5*time.Minute)
	defer limiter.Stop()

	authMiddleware := middleware.AuthMiddleware(cfg.JWTSecret)
	rateLimit := middleware.RateLimit(limiter)
	premium := middleware.RequirePremium()

	router.POST("/connections", authMiddleware, rateLimit, connectionHandler.Create)
	router.GET("/connections", authMiddleware, rateLimit, connectionHandler.List)
	router.GET("/connections/active", authMiddleware, rateLimit, connectionHandler.Active)
	router.GET("/connections/:connection_id", authMiddleware, rateLimit, connectionHandler.Get)
	router.PATCH("/connections/:connection_id", authMiddleware, rateLimit, connectionHandler.UpdateStatus)
	router.DELETE("/connections/:connection_id", authMiddleware, rateLimit, connectionHandler.Delete)

	router.POST("/connections/:connection_id/messages", authMiddleware, rateLimit, messageHandler.Post)
	router.GET("/connections/:connection_id/messages", authMiddleware, rateLimit, messageHandler.List)
	router.POST("/connections/:connection_id/messages/read", authMiddleware, rateLimit, messageHandler.MarkRead)
	router.DELETE("/messages/:message_id", authMiddleware, rateLimit, messageHandler.Delete)
	router.GET("/chats/summary", authMiddleware, rateLimit, messageHandler.Summary)

	router.POST("/rooms", authMiddleware, rateLimit, premium, roomHandler.Create)
	router.GET("/rooms", authMiddleware, rateLimit, premium, roomHandler.List)
	router.GET("/rooms/mine", authMiddleware, rateLimit, premium, roomHandler.Mine)
	router.GET("/rooms/:room_id", authMiddleware, rateLimit, premium, roomHandler.Get)
	router.POST("/rooms/:room_id/join", authMiddleware, rateLimit, premium, roomHandler.Join)
	router.POST("/rooms/:room_id/leave", authMiddleware, rateLimit, premium, roomHandler.Leave)
	router.PATCH("/rooms/:room_id", authMiddleware, rateLimit, premium, roomHandler.Update)
	router.DELETE("/rooms/:room_id", authMiddleware, rateLimit, premium, roomHandler.Deactivate)

	router.GET("/ws/connections/:connection_id", connectionWS.Handle)
	router.GET("/ws/rooms/:room_id", roomWS.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(router, audit, cfg.Debug)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
