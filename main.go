package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chitchat-service/internal/assistant"
	"chitchat-service/internal/auth"
	"chitchat-service/internal/config"
	"chitchat-service/internal/db"
	"chitchat-service/internal/handlers"
	"chitchat-service/internal/middleware"
	"chitchat-service/internal/observability"
	"chitchat-service/internal/rabbitmq"
	"chitchat-service/internal/repositories"
	"chitchat-service/internal/telemetry"
	"chitchat-service/internal/tracing"
	"chitchat-service/internal/ws"
)

const serviceName = "chitchat-service"

func main() {
	cfg := config.Load()

	telemetryShutdownCtx := context.Background()
	tel, err := tracing.Setup(telemetryShutdownCtx, cfg.OTLPEndpoint, serviceName)
	if err != nil {
		log.Printf("tracing disabled: %v", err)
	}
	if tel != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(telemetryShutdownCtx, 5*time.Second)
			defer cancel()
			if err := tel.Shutdown(ctx); err != nil {
				log.Printf("tracing shutdown: %v", err)
			}
		}()
	}

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	log.Printf("event publisher mode=%s", rabbitmq.PublisherMode(publisher))

	audit := telemetry.NewAuditEmitter(publisher, "audit.logs", serviceName, cfg.Environment)

	groupRepo := repositories.NewGroupRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	hub := ws.NewHub()
	presence := ws.NewPresence()
	verifier := auth.NewTokenVerifier(cfg.TokenSecret)

	var llm assistant.LLM
	if cfg.OpenAIAPIKey != "" {
		llm, err = assistant.NewOpenAILLM(assistant.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.AssistantModel,
		})
		if err != nil {
			log.Fatalf("failed to build llm client: %v", err)
		}
	} else {
		log.Printf("assistant disabled: no api key configured")
	}
	responder := assistant.NewResponder(messageRepo, hub, llm)

	groupHandler := handlers.NewGroupHandler(groupRepo, messageRepo, audit)
	messageHandler := handlers.NewMessageHandler(groupRepo, messageRepo, hub, audit)
	assistantHandler := handlers.NewAssistantHandler(groupRepo, responder, audit)

	wsHandler := ws.NewHandler(hub, presence, verifier, groupRepo)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.POST("/groups", authMiddleware, groupHandler.CreateGroup)
	router.GET("/groups", authMiddleware, groupHandler.ListGroups)
	router.GET("/groups/:group_id", authMiddleware, groupHandler.GetGroup)
	router.GET("/groups/:group_id/messages", authMiddleware, messageHandler.GetGroupMessages)
	router.POST("/groups/:group_id/messages", authMiddleware, messageHandler.PostGroupMessage)
	router.POST("/groups/:group_id/messages/:message_id/forward", authMiddleware, messageHandler.ForwardMessage)
	router.POST("/groups/:group_id/messages/:message_id/delete", authMiddleware, messageHandler.DeleteGroupMessageForMe)
	router.POST("/groups/:group_id/messages/:message_id/seen", authMiddleware, messageHandler.MarkMessageSeen)
	router.POST("/groups/:group_id/assistant", authMiddleware, assistantHandler.Trigger)

	router.GET("/ws", wsHandler.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterDebugRoutes(router, audit, cfg.Environment == "development")

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
