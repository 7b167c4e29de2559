package http

import (
	"context"
	"fmt"
	"log"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vibesync/internal/cache"
	"vibesync/internal/config"
	"vibesync/internal/database"
	"vibesync/internal/handler"
	"vibesync/internal/queue"
	"vibesync/internal/realtime"
	"vibesync/internal/redis"
	"vibesync/internal/repository"
	"vibesync/internal/service"
	"vibesync/internal/worker"
)

// Run wires the full service together and blocks until shutdown.
func Run() error {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Connect to Database
	db, err := database.Connect(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := database.EnsureSchema(db); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	// 3. Connect to Redis
	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}
	defer redisClient.Close()

	ctx := context.Background()
	if err := redisClient.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	// 4. Repositories and service
	subjectRepo := repository.NewSubjectRepository(db)
	likeRepo := repository.NewLikeRepository(db)
	commentRepo := repository.NewCommentRepository(db)

	interactions := service.NewInteractionService(subjectRepo, likeRepo, commentRepo, db)

	countCache := cache.NewCountCache(redisClient.Client)
	interactions.SetCountCache(countCache)
	interactions.SetPublisher(queue.NewPublisher(redisClient.Client))

	// 5. Realtime hub and background workers
	hub := realtime.NewHub()

	workerHandler := worker.NewHandler(countCache, interactions)
	workerHandler.SetBroadcaster(hub)

	workerCfg := worker.DefaultManagerConfig()
	workerCfg.WorkerCount = cfg.WorkerCount
	manager := worker.NewManager(queue.NewConsumer(redisClient.Client), workerHandler, workerCfg)
	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	// 6. HTTP server
	router := NewRouter(RouterConfig{
		LikeHandler:    handler.NewLikeHandler(interactions),
		CommentHandler: handler.NewCommentHandler(interactions),
		SubjectHandler: handler.NewSubjectHandler(interactions),
		Hub:            hub,
		JWTSecret:      cfg.JWTSecret,
	})

	server := &stdhttp.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on :%s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			errCh <- err
		}
	}()

	// 7. Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	manager.Stop()
	hub.Close(shutdownCtx)

	log.Println("Shutdown complete")
	return nil
}
