package main

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"telemed-chat/internal/auth"
	"telemed-chat/internal/blob"
	"telemed-chat/internal/chat"
	"telemed-chat/internal/config"
	"telemed-chat/internal/db"
	"telemed-chat/internal/handlers"
	"telemed-chat/internal/middleware"
	"telemed-chat/internal/observability"
	"telemed-chat/internal/rabbitmq"
	"telemed-chat/internal/store"
	"telemed-chat/internal/telemetry"
	"telemed-chat/internal/ws"
)

const serviceName = "telemed-chat"

func main() {
	cfg := config.Load()

	shutdownTracing := observability.InitTracing(context.Background(), cfg.OTLPEndpoint, serviceName, cfg.Environment)
	defer shutdownTracing(context.Background())

	var messageStore store.MessageStore
	if cfg.DBDSN != "" {
		database, err := db.Connect(cfg.DBDSN)
		if err != nil {
			log.Fatalf("failed to connect to db: %v", err)
		}
		messageStore = store.NewPostgres(database)
	} else {
		log.Println("no DB_DSN configured, using in-memory message store")
		messageStore = store.NewMemory()
	}

	verifier, err := auth.NewChain(auth.ChainConfig{
		ProviderPublicKey:     cfg.ProviderPublicKey,
		InternalTokensEnabled: cfg.InternalTokensEnabled,
		InternalTokenSecret:   cfg.InternalTokenSecret,
	})
	if err != nil {
		log.Fatalf("failed to configure token verification: %v", err)
	}
	if cfg.InternalTokensEnabled {
		log.Println("internal tokens enabled; do not use in production deployments")
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()

	audit := telemetry.NewAuditEmitter(publisher, "audit.chat", serviceName, cfg.Environment)

	blobs, err := blob.NewDisk(cfg.UploadDir, "/files", cfg.UploadSigningSecret)
	if err != nil {
		log.Fatalf("failed to init blob store: %v", err)
	}

	hub := ws.NewHub()
	coordinator := chat.NewCoordinator(messageStore, hub, audit)

	chatHandler := handlers.NewChatHandler(messageStore, coordinator, blobs, audit, cfg.HistoryPageLimit, cfg.UploadMaxBytes)
	wsHandler := ws.NewHandler(hub, coordinator, verifier, publisher, cfg.WSActionRate, cfg.WSActionBurst)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.GET("/api/chat/:roomId/messages", authMiddleware, chatHandler.GetHistory)
	router.GET("/api/chat/:roomId/search", authMiddleware, chatHandler.Search)
	router.POST("/api/chat/:roomId/upload", authMiddleware, chatHandler.Upload)
	router.GET("/files/*filekey", chatHandler.ServeFile)

	router.GET("/ws/chat", wsHandler.Handle)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterDebugRoutes(router, audit, hub, cfg.DebugRoutes)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
