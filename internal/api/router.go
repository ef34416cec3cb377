package api

import (
	"encoding/json"
	"net/http"

	"github.com/riskplane/riskplane/internal/api/handlers"
	"github.com/riskplane/riskplane/internal/api/middleware"
	"github.com/riskplane/riskplane/internal/config"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "X-Trace-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health & info
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Credit assessment
		r.Route("/credit", func(r chi.Router) {
			r.Post("/assess", h.AssessCredit)
			r.Route("/applications", func(r chi.Router) {
				r.Get("/", h.ListApplications)
				r.Get("/{appId}", h.GetApplication)
			})
		})

		// Fraud detection
		r.Route("/fraud", func(r chi.Router) {
			r.Post("/check", h.CheckFraud)
			r.Route("/cases", func(r chi.Router) {
				r.Get("/", h.ListCases)
				r.Get("/{caseId}", h.GetCase)
			})
		})

		// Customers
		r.Route("/customers", func(r chi.Router) {
			r.Post("/", h.CreateCustomer)
			r.Get("/{customerId}", h.GetCustomer)
		})

		// Outcome feedback & learning stats
		r.Route("/feedback", func(r chi.Router) {
			r.Post("/submit", h.SubmitFeedback)
			r.Get("/stats", h.LearningStats)
		})

		// Metrics evaluation
		r.Route("/metrics", func(r chi.Router) {
			r.Post("/evaluate", h.Evaluate)
			r.Get("/snapshots", h.ListSnapshots)
		})
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "riskplane",
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "riskplane",
		})
	}
}
