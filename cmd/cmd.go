package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bereal-backend/internal/cache"
	"bereal-backend/internal/config"
	"bereal-backend/internal/datefmt"
	"bereal-backend/internal/events"
	"bereal-backend/internal/geo"
	"bereal-backend/internal/handlers"
	"bereal-backend/internal/middleware"
	"bereal-backend/internal/push"
	"bereal-backend/internal/repository"
	"bereal-backend/internal/services"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func Run() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level)

	ctx := context.Background()

	// Connect to database
	db, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// Test database connection
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	if err := repository.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database schema")
	}
	log.Info().Msg("Database connection established")

	// Optional cache
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to redis")
		}
		defer rdb.Close()
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Redis connection established")
	}
	appCache := cache.New(rdb)

	dates, err := datefmt.New(cfg.Display.Timezone)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid display timezone")
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)

	// Initialize services
	imageStore, err := services.NewImageStore(ctx, services.S3Options{
		Region:       cfg.AWS.Region,
		Bucket:       cfg.AWS.S3Bucket,
		AccessKey:    cfg.AWS.AccessKey,
		SecretKey:    cfg.AWS.SecretKey,
		Endpoint:     cfg.AWS.Endpoint,
		UsePathStyle: cfg.AWS.UsePathStyle,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create image store")
	}

	userService := services.NewUserService(userRepo, appCache, cfg.Cache.ViewerTTL, cfg.JWT.Secret)
	postService := services.NewPostService(
		postRepo,
		imageStore,
		userService,
		geo.NewNominatimGeocoder(cfg.Geocoder.URL, cfg.Geocoder.Timeout, cfg.Geocoder.MaxInFlight),
		appCache,
		dates,
		services.PostServiceOptions{
			JPEGQuality:    cfg.Image.JPEGQuality,
			MaxPixels:      cfg.Image.MaxPixels,
			EnrichmentWait: cfg.Post.EnrichmentWait,
			FeedTTL:        cfg.Cache.FeedTTL,
		},
	)

	// Post observers
	wsHub := services.NewWSHub()
	postService.AddObserver(wsHub)

	if cfg.NATS.URL != "" {
		nc, err := events.Connect(cfg.NATS.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer nc.Drain()
		postService.AddObserver(events.NewPublisher(nc, cfg.NATS.Subject))
		log.Info().Str("url", cfg.NATS.URL).Str("subject", cfg.NATS.Subject).Msg("Publishing post events")
	}

	if cfg.APNs.KeyPath != "" {
		apnsClient, err := push.NewTokenClient(cfg.APNs.KeyPath, cfg.APNs.KeyID, cfg.APNs.TeamID, cfg.APNs.Production)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create APNs client")
		}
		postService.AddObserver(push.NewNotifier(apnsClient, userService, cfg.APNs.Topic))
		log.Info().Bool("production", cfg.APNs.Production).Msg("Push notifications enabled")
	}

	// Initialize handlers
	userHandler := handlers.NewUserHandler(userService)
	postHandler := handlers.NewPostHandler(postService, cfg.Image.MaxUploadBytes())
	wsHandler := handlers.NewWebSocketHandler(wsHub, userService, postService, imageStore, cfg.Image.ThumbnailSide, cfg.Image.MaxPixels)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware)

	// Routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/users", userHandler.CreateUser)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(userService))
			r.Get("/me", userHandler.Me)
			r.Put("/me/push-token", userHandler.UpdatePushToken)
			r.Get("/posts", postHandler.ListPosts)
			r.Post("/posts", postHandler.CreatePost)
			r.Get("/posts/{post_id}", postHandler.GetPost)
			r.Get("/posts/{post_id}/image", postHandler.GetImage)
		})
	})

	// WebSocket route
	r.Get("/ws", wsHandler.HandleWebSocket)

	r.Handle("/metrics", promhttp.Handler())

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Let pending notifications finish before connections close
	postService.Wait()

	log.Info().Msg("Server exited")
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
