package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"galileo-chat/internal/config"
	"galileo-chat/internal/ephemeral"
	"galileo-chat/internal/handler"
	"galileo-chat/internal/messaging"
	"galileo-chat/internal/middleware"
	"galileo-chat/internal/observability"
	"galileo-chat/internal/repository/cassandra"
	"galileo-chat/internal/repository/postgres"
	"galileo-chat/internal/security"
	"galileo-chat/internal/service"
	"galileo-chat/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting chat server", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := config.NewPostgresConnection(ctx, cfg.DatabaseURL, 10*time.Second)
	if err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to postgresql")

	cassandraSession, err := config.NewCassandraSession(cfg.Cassandra, cfg.StoreTimeout)
	if err != nil {
		slog.Error("failed to connect to cassandra", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer cassandraSession.Close()
	slog.Info("connected to cassandra", slog.String("keyspace", cfg.Cassandra.Keyspace))

	redisClient, err := config.NewRedisClient(ctx, cfg.Redis, cfg.StoreTimeout)
	if err != nil {
		slog.Error("failed to connect to redis", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.Info("connected to redis", slog.String("addr", cfg.Redis.Address))

	rmqCtx, rmqCancel := context.WithTimeout(ctx, 60*time.Second)
	defer rmqCancel()

	rmq, err := messaging.NewRabbitMQWithRetry(rmqCtx, cfg.RabbitMQURL)
	if err != nil {
		slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer rmq.Close()

	messageRepo := cassandra.NewMessageRepository(cassandraSession)
	membershipRepo := postgres.NewMembershipRepository(db)
	userRepo := postgres.NewUserRepository(db)
	store := ephemeral.NewStore(redisClient)
	identity := security.NewTokenValidator(cfg.JWTSecret, cfg.JWTIssuer)

	hub := websocket.NewHub()
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		if err := hub.Run(ctx); err != nil && err != context.Canceled {
			slog.Error("hub error", slog.String("error", err.Error()))
		}
	}()
	slog.Info("websocket hub started")

	chatService := service.NewChatService(messageRepo, membershipRepo, userRepo, store, hub)

	if err := messaging.NewRoomEventConsumer(rmq, chatService).Start(ctx); err != nil {
		slog.Error("failed to start room event consumer", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("room event consumer started")

	allowedOrigins := middleware.ParseOrigins(cfg.AllowedOrigins)
	messageHandler := handler.NewMessageHandler(chatService)
	wsHandler := handler.NewWebSocketHandler(websocket.SessionDeps{
		Hub:        hub,
		Identity:   identity,
		Membership: membershipRepo,
		Presence:   store,
		Users:      chatService,
	}, allowedOrigins)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(allowedOrigins))
	r.Use(middleware.OpenAPIValidator(middleware.NewOpenAPIValidatorConfig(cfg.OpenAPISpec, cfg.IsProduction())))

	r.Get("/health", handler.Health)
	r.Get("/health/ready", handler.Ready(
		handler.HealthCheck{Name: "cassandra", Critical: true, Check: messageRepo.Ping},
		handler.HealthCheck{Name: "postgres", Critical: true, Check: db.PingContext},
		handler.HealthCheck{Name: "rabbitmq", Critical: true, Check: rmq.Ping},
		handler.HealthCheck{Name: "redis", Check: store.Ping},
	))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		apiLimiter := middleware.NewRateLimiter(ctx, 20, 50)

		r.Use(middleware.Auth(identity))
		r.Use(apiLimiter.Middleware())

		r.Get("/rooms/{room_id}/messages", messageHandler.GetMessages)
		r.Post("/rooms/{room_id}/messages", messageHandler.PostMessage)
		r.Get("/rooms/{room_id}/stats", messageHandler.RoomStats)
	})

	// Token comes from the query string or header; the session authenticates.
	r.Get("/ws/chat/{room_id}", wsHandler.HandleConnection)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("chat server listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	// Stops the consumer and closes every live WebSocket session.
	cancel()
	select {
	case <-hubDone:
	case <-shutdownCtx.Done():
	}

	slog.Info("server stopped gracefully")
}
