package http

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/paperkeep/paperkeep/internal/middleware"
)

// NewRouter constructs the HTTP handler serving the sync API.
//
// Routes:
//
//	POST /register            → authHandler.Register
//	POST /login               → authHandler.Login
//	POST /sync/batch          → syncHandler.Batch   (bearer auth)
//	GET  /records/{entityType} → syncHandler.Records (bearer auth)
//
// All requests with a body must carry Content-Type: application/json.
func NewRouter(
	authHandler *AuthHandler,
	syncHandler *SyncHandler,
	logger *zap.Logger,
	jwtSecret string,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.AllowContentType("application/json"))
	r.Use(middleware.WithRequestLogging(logger))

	// Public endpoints
	r.Post("/register", authHandler.Register)
	r.Post("/login", authHandler.Login)

	// Protected group: requires a valid bearer token
	r.Group(func(r chi.Router) {
		r.Use(middleware.BearerAuth(jwtSecret))
		r.Post("/sync/batch", syncHandler.Batch)
		r.Get("/records/{entityType}", syncHandler.Records)
	})

	return r
}
