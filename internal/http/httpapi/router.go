package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"studio/internal/http/handlers"
	"studio/internal/infra"
	"studio/internal/middleware"
)

// Options carries router knobs beyond the handler container.
type Options struct {
	Logger          infra.Logger
	RateLimitPerMin int
	StaticDir       string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
	)
	if opts.RateLimitPerMin > 0 {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
	}

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/jobs", func(r chi.Router) {
		r.Get("/", app.ListJobs)
		r.Post("/", app.CreateJob)
		r.Get("/{id}", app.GetJob)
		r.Delete("/{id}", app.DeleteJob)
		r.Post("/{id}/rerun", app.RerunJob)
	})

	r.Route("/v1/girls", func(r chi.Router) {
		r.Get("/", app.ListGirls)
		r.Post("/", app.CreateGirl)
		r.Get("/{id}", app.GetGirl)
		r.Delete("/{id}", app.DeleteGirl)
		r.Get("/{id}/context-assets", app.GetContextAssets)
		r.Put("/{id}/context-assets/{slot}", app.PutContextAsset)
		r.Delete("/{id}/context-assets/{slot}", app.DeleteContextAsset)
	})

	r.Route("/v1/library", func(r chi.Router) {
		r.Get("/", app.ListLibrary)
		r.Post("/", app.UploadLibraryImage)
	})

	r.Get("/v1/costs/summary", app.CostsSummary)

	if opts.StaticDir != "" {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir)))
		r.Get("/static/*", fs.ServeHTTP)
	}

	return r
}
