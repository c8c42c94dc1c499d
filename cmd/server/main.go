package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"cms-workspace-publisher/internal/audit"
	"cms-workspace-publisher/internal/config"
	"cms-workspace-publisher/internal/db"
	"cms-workspace-publisher/internal/middleware"
	"cms-workspace-publisher/internal/notification"
	"cms-workspace-publisher/internal/permission"
	"cms-workspace-publisher/internal/record"
	"cms-workspace-publisher/internal/refindex"
	"cms-workspace-publisher/internal/relation"
	"cms-workspace-publisher/internal/schema"
	"cms-workspace-publisher/internal/user"
	"cms-workspace-publisher/internal/version"
	"cms-workspace-publisher/internal/worker"
	"cms-workspace-publisher/internal/workspace"
	"cms-workspace-publisher/redis"
)

func main() {
	// Load configuration
	config.LoadConfig()

	// Connect to database
	db.ConnectDb()
	defer db.CloseDb()

	// Migrate database schema
	db.Migrate()

	// Seed database with initial data (for development)
	db.SeedData()

	// Initialize Redis
	redis.InitRedis()

	zlog := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Initialize repositories and services
	userRepo := user.NewRepository(db.AppDb)
	userService := user.NewService(userRepo)
	workspaceService := workspace.NewService(db.AppDb)

	schemas := schema.Default()
	store := record.NewGormStorage(db.AppDb, schemas)
	resolver := relation.NewResolver(store)
	oracle := permission.NewMembershipOracle(workspaceService)
	auditLogger := audit.NewLogger(db.AppDb, zlog)
	historyStore := audit.NewHistoryStore(db.AppDb)
	refIndex := refindex.NewMaintainer(db.AppDb, store, schemas)
	events := redis.NewEventPublisher(redis.RedisClient, "workspace-events")
	cache := redis.NewCache(redis.RedisClient)

	engine := version.NewEngine(
		schemas,
		store,
		resolver,
		oracle,
		workspaceService,
		auditLogger,
		historyStore,
		refIndex,
		events,
		cache,
	)

	// Notification delivery runs on a worker pool so a slow notification
	// service never holds up the publishing response.
	pool := worker.NewPool(config.AppConfig.NotifyWorkers, 100)
	notifyClient := notification.NewClient(
		config.AppConfig.NotifyServiceAddress,
		config.AppConfig.NotifyServiceSecret,
	)
	dispatcher := notification.NewDispatcher(store, notification.NewAsyncSink(pool, notifyClient), auditLogger)

	processor := version.NewProcessor(engine, dispatcher)

	// Initialize handlers
	userHandler := user.NewHandler(userService)
	workspaceHandler := workspace.NewHandler(workspaceService)
	versionHandler := version.NewHandler(processor)

	authMiddleware := &middleware.Auth{UserService: userService}

	// Initialize Gin router
	router := gin.Default()
	router.Use(middleware.ErrorHandler())

	// cors setting
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
	}

	if config.AppConfig.Environment == "development" {
		// Allow all origins in development
		corsConfig.AllowAllOrigins = true
	} else {
		// Restrict origins in production
		corsConfig.AllowOrigins = []string{config.AppConfig.FrontendAddress}
	}
	router.Use(cors.New(corsConfig))

	// User routes
	router.POST("/register", userHandler.Register)
	router.POST("/login", userHandler.Login)
	router.DELETE("/logout", authMiddleware.AuthMiddleWare(), userHandler.Logout)
	router.GET("/profile", authMiddleware.AuthMiddleWare(), userHandler.GetProfile)
	router.PUT("/profile/workspace", authMiddleware.AuthMiddleWare(), userHandler.SwitchWorkspace)

	// Workspace routes
	router.GET("/workspaces", authMiddleware.AuthMiddleWare(), workspaceHandler.List)

	// Versioning routes
	router.POST("/version/commands", authMiddleware.AuthMiddleWare(), versionHandler.RunBatch)

	// Server configuration
	serverPort := config.AppConfig.ServerPort
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", serverPort),
		Handler: router.Handler(),
	}

	// Start server
	go func() {
		log.Printf("Server listening on port %s", serverPort)
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Println("Server shutdown error:", err)
	}

	// Drain queued notification deliveries before exiting
	pool.Shutdown()

	log.Println("Server exited")
}
