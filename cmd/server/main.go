package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/Peleke/comfyui-mcp-sub002/internal/client"
	"github.com/Peleke/comfyui-mcp-sub002/internal/config"
	"github.com/Peleke/comfyui-mcp-sub002/internal/handler"
	"github.com/Peleke/comfyui-mcp-sub002/internal/middleware"
	"github.com/Peleke/comfyui-mcp-sub002/internal/service"
	"github.com/Peleke/comfyui-mcp-sub002/internal/webhook"
	ws "github.com/Peleke/comfyui-mcp-sub002/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client (rate limiting)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available, rate limiting disabled: %v", err)
	}

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize ComfyUI engine client
	comfyClient := client.NewComfyClient(&cfg.Comfy)
	if err := comfyClient.SystemStats(ctx); err != nil {
		log.Printf("Warning: ComfyUI engine not reachable at %s: %v", cfg.Comfy.BaseURL, err)
	}

	// Initialize storage client (optional - results reference the
	// engine host when not configured)
	var storage client.StorageClient
	if cfg.Storage.AccessKeyID != "" && cfg.Storage.SecretAccessKey != "" {
		s3Client, err := client.NewS3Client(&cfg.Storage)
		if err != nil {
			log.Printf("Warning: storage client not initialized: %v", err)
		} else {
			storage = s3Client
		}
	} else {
		log.Println("Info: object storage not configured, results reference engine files")
	}

	// Initialize services
	notifier := webhook.NewNotifier()
	genService, err := service.NewGenerationService(&cfg.Queues, comfyClient, storage, notifier, hub)
	if err != nil {
		log.Fatalf("Failed to initialize generation service: %v", err)
	}
	genService.StartSweeper(ctx, cfg.Queues.CleanupInterval, cfg.Queues.MaxAge)

	// Initialize handlers
	generateHandler := handler.NewGenerateHandler(genService, validate)
	jobsHandler := handler.NewJobsHandler(genService)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    50 * 1024 * 1024, // 50MB
	})

	// Global middleware
	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		engineOK := comfyClient.SystemStats(c.Context()) == nil
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"engine":  engineOK,
				"storage": storage != nil,
				"redis":   redisClient.Ping(c.Context()).Err() == nil,
			},
		})
	})

	// API routes
	api := app.Group("/api", authMiddleware.Authenticate())

	generate := api.Group("/generate", rateLimiter.GenerateLimit(cfg.RateLimit.GeneratePerHour))
	generate.Post("/portrait", generateHandler.Portrait)
	generate.Post("/tts", generateHandler.TTS)
	generate.Post("/lipsync", generateHandler.Lipsync)

	jobs := api.Group("/jobs", rateLimiter.JobsLimit(cfg.RateLimit.JobsPerMin))
	jobs.Get("/", jobsHandler.List)
	jobs.Get("/:jobId/status", jobsHandler.Status)
	jobs.Get("/:jobId/result", jobsHandler.Result)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		cancel()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
