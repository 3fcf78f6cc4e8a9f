package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"contract-relay/internal/handlers"
	"contract-relay/internal/middleware"
	"contract-relay/internal/websocket"
)

func New(
	tokens *middleware.SessionTokens,
	limiter *middleware.RateLimiter,
	contractHandler *handlers.ContractHandler,
	sessionHandler *handlers.SessionHandler,
	wsHub *websocket.Hub,
	allowedOrigins []string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(allowedOrigins))

	r.Get("/", handlers.Root)
	r.Get("/health", handlers.Health)

	r.Route("/api/gpt", func(r chi.Router) {
		r.Post("/sessions", sessionHandler.Create)
		r.Delete("/sessions/{id}", sessionHandler.Delete)

		r.Route("/contract", func(r chi.Router) {
			r.With(limiter.Middleware).Post("/validate", contractHandler.Validate)
			r.Post("/check", contractHandler.Check)
			r.With(tokens.Middleware).Get("/validations", contractHandler.ListValidations)
			r.With(tokens.Middleware).Get("/validations/{id}", contractHandler.GetValidation)
		})

		// WebSocket
		r.With(tokens.Middleware).Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
