package router

import (
	"net/http"
	"time"

	"sustainflow-service/internal/interface/rest"
	"sustainflow-service/pkg/logger"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// Options configures the HTTP router
type Options struct {
	Handler        *rest.Handler
	Validator      *rest.JWTValidator
	MetricsHandler http.Handler
	CORSOrigins    []string
	Logger         logger.Logger
}

// NewRouter builds the API routes behind auth, access logging and CORS
func NewRouter(opts Options) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Healthy"))
	}).Methods(http.MethodGet)
	if opts.MetricsHandler != nil {
		r.Handle("/metrics", opts.MetricsHandler).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(opts.Validator.Middleware)

	h := opts.Handler
	api.HandleFunc("/pickups", h.CreatePickup).Methods(http.MethodPost)
	api.HandleFunc("/pickups", h.ListPickups).Methods(http.MethodGet)
	api.HandleFunc("/pickups/{id}", h.GetPickup).Methods(http.MethodGet)
	api.HandleFunc("/pickups/{id}/propose-dates", h.ProposeDates).Methods(http.MethodPost)
	api.HandleFunc("/pickups/{id}/confirm-date", h.ConfirmDate).Methods(http.MethodPost)
	api.HandleFunc("/pickups/{id}/qr/request", h.RequestQR).Methods(http.MethodPost)
	api.HandleFunc("/pickups/{id}/qr/accept", h.AcceptQR).Methods(http.MethodPost)
	api.HandleFunc("/pickups/{id}/qr", h.GenerateQR).Methods(http.MethodPost)
	api.HandleFunc("/pickups/{id}/complete", h.CompletePickup).Methods(http.MethodPost)
	api.HandleFunc("/pickups/{id}/cancel", h.CancelPickup).Methods(http.MethodPost)

	api.HandleFunc("/admin/pickups/{id}", h.DeletePickup).Methods(http.MethodDelete)
	api.HandleFunc("/admin/analytics", h.Analytics).Methods(http.MethodGet)

	api.HandleFunc("/points", h.Points).Methods(http.MethodGet)
	api.HandleFunc("/points/redeem", h.RedeemPoints).Methods(http.MethodPost)

	r.Use(accessLog(opts.Logger))

	c := cors.New(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	return c.Handler(r)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func accessLog(log logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			log.Debug("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start))
		})
	}
}
