package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"imagebatch/internal/http/handlers"
	"imagebatch/internal/middleware"
)

// Options configures the orchestrator router.
type Options struct {
	Logger          zerolog.Logger
	CORSOrigins     []string
	RateLimitPerMin int
	// Sessions guards the session routes; nil leaves them unmounted.
	Sessions middleware.SessionVerifier
	// Envelope serves POST /soap when set.
	Envelope http.Handler
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(opts.Logger),
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)
	if opts.Envelope != nil {
		r.Method(http.MethodPost, "/soap", opts.Envelope)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))

		r.Route("/batches", func(r chi.Router) {
			r.Post("/", app.CreateBatch)
			r.Route("/{batchID}", func(r chi.Router) {
				r.Get("/", app.GetBatch)
				r.Put("/status", app.UpdateBatchStatus)
				r.Patch("/status", app.UpdateBatchStatus)
				r.Get("/images", app.ListBatchImages)
				r.Post("/images", app.RegisterImages)
				r.Get("/transformations", app.ListBatchTransformations)
				r.Get("/metrics", app.BatchMetrics)
				r.Get("/download", app.DownloadBatch)
				r.Get("/info", app.DownloadInfo)
			})
		})
		r.Get("/users/{userID}/batches", app.ListUserBatches)

		r.Route("/images/{imageID}", func(r chi.Router) {
			r.Get("/", app.GetImage)
			r.Post("/results", app.RecordResult)
			r.Post("/processed", app.MarkImageProcessed)
			r.Get("/transformations", app.ListImageTransformations)
			r.Post("/transformations", app.AddImageTransformation)
		})

		r.Route("/nodes", func(r chi.Router) {
			r.Get("/", app.ListNodes)
			r.Post("/", app.RegisterNode)
			r.Get("/active", app.ListActiveNodes)
			r.Get("/metrics", app.NodeMetrics)
			r.Post("/heartbeat", app.Heartbeat)
			r.Get("/{nodeID}", app.GetNode)
		})

		r.Route("/transformations", func(r chi.Router) {
			r.Get("/", app.ListTransformations)
			r.Get("/by-name/{name}", app.GetTransformationByName)
			r.Get("/{transformationID}", app.GetTransformation)
		})

		r.Route("/logs", func(r chi.Router) {
			r.Post("/", app.CreateLog)
			r.Get("/recent", app.RecentLogs)
			r.Get("/batch/{batchID}", app.BatchLogs)
			r.Get("/image/{imageID}", app.ImageLogs)
			r.Get("/node/{nodeID}", app.NodeLogs)
		})

		if opts.Sessions != nil {
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireSession(opts.Sessions))
				r.Post("/submissions", app.SubmitBatch)
				r.Get("/me/batches", app.MyBatches)
			})
		}
	})

	return r
}
