package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// Routes builds the HTTP router: a welcome page at a bare GET / (no query
// string), and the single POST / endpoint, dispatched by the `type` query
// parameter. Any other method, and a GET carrying a query string, gets 405
// with Allow: POST.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(CorrelationMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", welcomeHandler)
	r.Post("/", s.Dispatch)
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeMethodNotAllowed(w, r)
	})

	log.Info().Msg("HTTP routes registered")
	return r
}

func welcomeHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.RawQuery != "" {
		writeMethodNotAllowed(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Welcome to the RelaySync API\n"))
}
