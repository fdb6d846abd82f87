package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/markwoz/kart-league/handlers"
	"github.com/markwoz/kart-league/middleware"
)

func SetupRoutes(
	router *chi.Mux,
	authenticator *middleware.Authenticator,
	authHandler *handlers.AuthHandler,
	tournamentHandler *handlers.TournamentHandler,
	matchHandler *handlers.MatchHandler,
	bracketHandler *handlers.BracketHandler,
	standingsHandler *handlers.StandingsHandler,
	timeTrialHandler *handlers.TimeTrialHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	router.Use(authenticator.Authenticate)

	router.Post("/auth/register", authHandler.Register)
	router.Post("/auth/login", authHandler.Login)

	router.Get("/tournaments", tournamentHandler.ListTournaments)
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Use(middleware.RequireAdmin)
		r.Post("/tournaments", tournamentHandler.CreateTournament)
	})

	router.Route("/tournaments/{tournamentID}", func(r chi.Router) {
		// Reads are public for spectators.
		r.Get("/", tournamentHandler.GetTournament)
		r.Get("/matches", matchHandler.ListMatches)
		r.Get("/standings", standingsHandler.ListStandings)
		r.Get("/bracket", bracketHandler.GetBracket)
		r.Get("/timetrial", timeTrialHandler.Leaderboard)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Post("/qualification", standingsHandler.Enroll)
			r.Post("/timetrial", timeTrialHandler.Enter)
			r.Delete("/qualification/{playerID}", standingsHandler.Drop)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Use(middleware.RequireAdmin)
			r.Post("/bracket", bracketHandler.BuildBracket)
			r.Post("/status", tournamentHandler.UpdateStatus)
		})
	})

	router.Route("/matches/{matchID}", func(r chi.Router) {
		r.Get("/", matchHandler.GetMatch)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Post("/report", matchHandler.ReportScore)
			r.Post("/evidence", matchHandler.AttachEvidence)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Use(middleware.RequireAdmin)
			r.Post("/score", matchHandler.AdminSetScore)
			r.Post("/advance", bracketHandler.AdvanceMatch)
		})
	})

	router.Route("/timetrial/{entryID}", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/times", timeTrialHandler.SubmitTime)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Post("/eliminate", timeTrialHandler.DecrementLives)
		})
	})

	router.Get("/ws/tournaments/{tournamentID}", webSocketHandler.ServeWs)

	router.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
}
