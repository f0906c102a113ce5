package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/banana-api/internal/api"
	apiMiddleware "github.com/phrazzld/banana-api/internal/api/middleware"
)

// setupRouter creates the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	// RemoteAddr is the socket peer unless a trusted proxy supplies the
	// client address; the rate limiter keys on it.
	if app.config.Server.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware(app.logger))

	taskHandler := api.NewTaskHandler(app.generationService, app.engine, app.maxRequestBytes(), app.logger)
	callbackHandler := api.NewCallbackHandler(app.engine, app.callbackTokens, app.logger)

	authenticate := func(next http.Handler) http.Handler { return next }
	if app.apiKeys != nil {
		authenticate = apiMiddleware.NewAPIKeyMiddleware(app.apiKeys).Authenticate
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(apiMiddleware.RateLimit(app.limiter))
			r.Use(authenticate)
			r.Post("/tasks", taskHandler.CreateTask)
			r.Post("/generate-pro", taskHandler.CreateTask)
		})

		r.With(authenticate).Get("/tasks/{taskID}", taskHandler.GetTask)
	})

	// The provider calls back on this path; it is authenticated by the
	// token in the callback URL rather than the API key.
	r.Post(api.CallbackPath, callbackHandler.HandleCallback)

	media := http.StripPrefix("/media/", http.FileServer(http.Dir(app.uploads.Dir())))
	r.Get("/media/*", media.ServeHTTP)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
