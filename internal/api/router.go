package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/pimentellima/smulti/internal/api/middleware"
	"github.com/pimentellima/smulti/internal/api/response"
)

// Dependencies holds all handler dependencies for the router.
type Dependencies struct {
	HealthHandler        http.HandlerFunc
	SubmitJobsHandler    http.HandlerFunc
	GetJobHandler        http.HandlerFunc
	RetryJobHandler      http.HandlerFunc
	StartDownloadHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	r.Post("/api/v1/jobs", orNotImplemented(deps.SubmitJobsHandler))
	r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.GetJobHandler))
	r.Post("/api/v1/jobs/{jobID}/retry", orNotImplemented(deps.RetryJobHandler))

	r.Post("/api/v1/formats/{formatID}/download", orNotImplemented(deps.StartDownloadHandler))

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
