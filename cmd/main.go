package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"

	"github.com/markwoz/kart-league/brackets"
	"github.com/markwoz/kart-league/config"
	"github.com/markwoz/kart-league/db"
	_ "github.com/markwoz/kart-league/docs"
	"github.com/markwoz/kart-league/handlers"
	"github.com/markwoz/kart-league/middleware"
	"github.com/markwoz/kart-league/repositories"
	api "github.com/markwoz/kart-league/routes"
	"github.com/markwoz/kart-league/services"
	"github.com/markwoz/kart-league/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		}
	}()
	logger.Info("database connection established")

	uploader, err := storage.NewCloudflareR2Uploader(storage.CloudflareR2UploaderConfig{
		AccountID:       cfg.R2AccountID,
		AccessKeyID:     cfg.R2AccessKeyID,
		SecretAccessKey: cfg.R2SecretAccessKey,
		BucketName:      cfg.R2BucketName,
		PublicBaseURL:   cfg.R2PublicBaseURL,
	})
	if err != nil {
		logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Cloudflare R2 uploader initialized")

	wsHub := brackets.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket hub started")

	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	qualificationRepo := repositories.NewPostgresQualificationRepository(dbConn)
	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	playerRepo := repositories.NewPostgresPlayerRepository(dbConn)
	timeTrialRepo := repositories.NewPostgresTimeTrialRepository(dbConn)
	auditRepo := repositories.NewPostgresAuditRepository(dbConn)
	logger.Info("repositories initialized")

	authService := services.NewAuthService(playerRepo, cfg.JWTSecretKey)
	tournamentService := services.NewTournamentService(tournamentRepo)
	standingsService := services.NewStandingsService(qualificationRepo, matchRepo, tournamentRepo, playerRepo)
	bracketService := services.NewBracketService(
		repositories.NewTxManager(dbConn),
		matchRepo,
		qualificationRepo,
		tournamentRepo,
		playerRepo,
		brackets.NewDoubleEliminationGenerator(),
		wsHub,
		logger,
	)
	reportService := services.NewReportService(
		matchRepo,
		auditRepo,
		standingsService,
		bracketService,
		wsHub,
		uploader,
		logger,
	)
	matchService := services.NewMatchService(matchRepo, uploader)
	timeTrialService := services.NewTimeTrialService(timeTrialRepo, tournamentRepo, playerRepo, wsHub, logger)
	logger.Info("services initialized")

	authenticator := middleware.NewAuthenticator(authService)
	authHandler := handlers.NewAuthHandler(authService)
	tournamentHandler := handlers.NewTournamentHandler(tournamentService)
	matchHandler := handlers.NewMatchHandler(matchService, reportService)
	bracketHandler := handlers.NewBracketHandler(bracketService)
	standingsHandler := handlers.NewStandingsHandler(standingsService)
	timeTrialHandler := handlers.NewTimeTrialHandler(timeTrialService)
	webSocketHandler := handlers.NewWebSocketHandler(wsHub, logger)

	router := chi.NewRouter()
	api.SetupRoutes(
		router,
		authenticator,
		authHandler,
		tournamentHandler,
		matchHandler,
		bracketHandler,
		standingsHandler,
		timeTrialHandler,
		webSocketHandler,
	)
	logger.Info("routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
		logger.Info("server shutdown complete")
	}
	logger.Info("application exited")
}
