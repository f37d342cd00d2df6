// Package rest assembles the HTTP API.
package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agora-backend/infrastructure/di"
	"agora-backend/interfaces/http/rest/handlers"
	"agora-backend/interfaces/http/rest/middleware"
	"agora-backend/interfaces/ws"
	"agora-backend/pkg/common"
)

// NewRouter builds the full HTTP routing tree from the container
func NewRouter(container *di.Container) http.Handler {
	logger := container.Logger

	sessionHandler := handlers.NewSessionHandler(container.Registry, logger)
	graphHandler := handlers.NewGraphHandler(container.Registry, logger)
	branchHandler := handlers.NewBranchHandler(container.Registry, logger)
	streamHandler := ws.NewStreamHandler(container.Registry, container.Bus, logger)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.RequestLogger(logger, container.Metrics))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   container.Config.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Actor-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		common.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(container.Metrics.Registry(), promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.CreateSession)
			r.Get("/", sessionHandler.ListSessions)
			r.Get("/persisted", sessionHandler.ListPersistedSessions)

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", sessionHandler.GetSession)
				r.Delete("/", sessionHandler.DeleteSession)
				r.Get("/snapshot", sessionHandler.GetSnapshot)
				r.Get("/stream", streamHandler.Stream)

				r.Post("/interrupt", sessionHandler.Interrupt)
				r.Delete("/interrupt", sessionHandler.ResumeFromInterrupt)

				r.Post("/rounds", sessionHandler.RecordRound)
				r.Get("/convergence", sessionHandler.Convergence)
				r.Post("/synthesis/complete", sessionHandler.CompleteSynthesis)

				r.Post("/analysis", sessionHandler.RunAnalysis)
				r.Get("/analysis/latest", sessionHandler.LatestAnalysis)

				r.Route("/nodes", func(r chi.Router) {
					r.Post("/", graphHandler.CreateNode)
					r.Get("/{nodeID}", graphHandler.GetNode)
					r.Patch("/{nodeID}", graphHandler.UpdateNode)
					r.Delete("/{nodeID}", graphHandler.DeleteNode)
				})

				r.Route("/edges", func(r chi.Router) {
					r.Post("/", graphHandler.CreateEdge)
					r.Patch("/{edgeID}", graphHandler.UpdateEdge)
					r.Delete("/{edgeID}", graphHandler.DeleteEdge)
				})

				r.Route("/branches", func(r chi.Router) {
					r.Post("/", branchHandler.CreateBranch)
					r.Get("/", branchHandler.ListBranches)

					r.Route("/{branchID}", func(r chi.Router) {
						r.Post("/status", branchHandler.TransitionBranch)

						r.Route("/lock", func(r chi.Router) {
							r.Get("/", branchHandler.LockState)
							r.Post("/", branchHandler.AcquireLock)
							r.Delete("/", branchHandler.ReleaseLock)
							r.Post("/heartbeat", branchHandler.Heartbeat)
						})
					})
				})
			})
		})
	})

	logger.Info("router assembled")
	return r
}
