package main

import (
	"context"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/keatohn/baggins-and-allies/internal/auth"
	"github.com/keatohn/baggins-and-allies/internal/config"
	"github.com/keatohn/baggins-and-allies/internal/handler"
	"github.com/keatohn/baggins-and-allies/internal/logger"
	"github.com/keatohn/baggins-and-allies/internal/middleware"
	"github.com/keatohn/baggins-and-allies/internal/repository/postgres"
	redisrepo "github.com/keatohn/baggins-and-allies/internal/repository/redis"
	"github.com/keatohn/baggins-and-allies/internal/service"
	"github.com/keatohn/baggins-and-allies/setups"
)

func main() {
	logger.Init()
	cfg := config.Load()
	log.Info().Str("databaseURL", cfg.DatabaseURL).Msg("Config loaded")

	// Database
	db, err := postgres.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer db.Close()

	// Redis
	redisClient, err := redisrepo.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis connection failed")
	}
	defer redisClient.Close()

	// Repos
	userRepo := postgres.NewUserRepo(db)
	gameRepo := postgres.NewGameRepo(db)
	actionRepo := postgres.NewActionRepo(db)

	// Auth
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret)
	var googleOAuth *auth.OAuthProvider
	if os.Getenv("GOOGLE_CLIENT_ID") != "" {
		googleOAuth = auth.NewGoogleOAuth(
			os.Getenv("GOOGLE_CLIENT_ID"),
			os.Getenv("GOOGLE_CLIENT_SECRET"),
			os.Getenv("GOOGLE_REDIRECT_URL"),
		)
	}

	// Setup bundles: embedded by default, or a directory for map work.
	var setupFS fs.FS = setups.FS
	if cfg.SetupsDir != "" {
		setupFS = os.DirFS(cfg.SetupsDir)
	}
	catalog := service.NewSetupCatalog(setupFS)

	// WebSocket hub
	wsHub := handler.NewHub()

	// Services
	gameSvc := service.NewGameService(gameRepo, redisClient, catalog, wsHub)
	playSvc := service.NewPlayService(gameRepo, actionRepo, redisClient, catalog, wsHub, service.NewD10Roller())

	// Handlers
	authHandler := handler.NewAuthHandler(googleOAuth, jwtMgr, userRepo)
	userHandler := handler.NewUserHandler(userRepo)
	gameHandler := handler.NewGameHandler(gameSvc)
	playHandler := handler.NewPlayHandler(playSvc)
	wsHandler := handler.NewWSHandler(wsHub, jwtMgr)

	// Router
	mux := http.NewServeMux()
	authMw := auth.Middleware(jwtMgr)

	// Health
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Auth (public)
	mux.HandleFunc("POST /auth/register", authHandler.Register)
	mux.HandleFunc("POST /auth/login", authHandler.Login)
	mux.HandleFunc("GET /auth/google/login", authHandler.GoogleLogin)
	mux.HandleFunc("GET /auth/google/callback", authHandler.GoogleCallback)
	mux.HandleFunc("POST /auth/refresh", authHandler.RefreshToken)
	mux.HandleFunc("GET /auth/dev", authHandler.DevLogin)

	// Protected API routes
	api := http.NewServeMux()
	api.HandleFunc("GET /users/me", userHandler.GetMe)
	api.HandleFunc("PATCH /users/me", userHandler.UpdateMe)
	api.HandleFunc("GET /users/{id}", userHandler.GetUser)

	api.HandleFunc("GET /setups", gameHandler.ListSetups)
	api.HandleFunc("POST /games", gameHandler.CreateGame)
	api.HandleFunc("GET /games", gameHandler.ListGames)
	api.HandleFunc("POST /games/join", gameHandler.JoinGame)
	api.HandleFunc("GET /games/{id}", gameHandler.GetGame)
	api.HandleFunc("GET /games/{id}/meta", gameHandler.GetGameMeta)
	api.HandleFunc("POST /games/{id}/start", gameHandler.StartGame)
	api.HandleFunc("DELETE /games/{id}", gameHandler.DeleteGame)

	api.HandleFunc("GET /games/{id}/state", playHandler.GetState)
	api.HandleFunc("GET /games/{id}/available-actions", playHandler.AvailableActions)
	api.HandleFunc("GET /games/{id}/stats", playHandler.Stats)
	api.HandleFunc("GET /games/{id}/movable-units", playHandler.MovableUnits)
	api.HandleFunc("GET /games/{id}/contested", playHandler.ContestedTerritories)

	api.HandleFunc("POST /games/{id}/purchase", playHandler.PurchaseUnits)
	api.HandleFunc("POST /games/{id}/purchase-camp", playHandler.PurchaseCamp)
	api.HandleFunc("POST /games/{id}/move", playHandler.MoveUnits)
	api.HandleFunc("POST /games/{id}/cancel-move", playHandler.CancelMove)
	api.HandleFunc("POST /games/{id}/combat/initiate", playHandler.InitiateCombat)
	api.HandleFunc("POST /games/{id}/combat/continue", playHandler.ContinueCombat)
	api.HandleFunc("POST /games/{id}/combat/retreat", playHandler.Retreat)
	api.HandleFunc("POST /games/{id}/mobilize", playHandler.MobilizeUnits)
	api.HandleFunc("POST /games/{id}/cancel-mobilization", playHandler.CancelMobilization)
	api.HandleFunc("POST /games/{id}/place-camp", playHandler.PlaceCamp)
	api.HandleFunc("POST /games/{id}/end-phase", playHandler.EndPhase)
	api.HandleFunc("POST /games/{id}/end-turn", playHandler.EndTurn)

	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", authMw(api)))

	// WebSocket (auth via query param, not middleware)
	mux.HandleFunc("GET /api/v1/ws", wsHandler.ServeWS)

	// Apply global middleware
	root := middleware.Chain(mux, middleware.Logger, middleware.Recover, middleware.CORS("*"), middleware.JSON)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Rebuild Redis snapshots from the action log after a restart.
	if err := playSvc.RecoverActiveGames(context.Background()); err != nil {
		log.Error().Err(err).Msg("Failed to recover active games (non-fatal)")
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server shutdown error")
	}
	log.Info().Msg("Server stopped")
}
