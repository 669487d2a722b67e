// Package gateway is the edge JSON API. Every call is forwarded to the
// orchestrator through the envelope bridge.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"imagebatch/internal/bridge"
	"imagebatch/internal/domain"
	"imagebatch/internal/middleware"
)

// Bridge is the part of bridge.Client the gateway calls.
type Bridge interface {
	RegisterUser(ctx context.Context, in domain.NewUser) (*bridge.RegisterResult, error)
	Login(ctx context.Context, username, password string) (*bridge.LoginResult, error)
	Logout(ctx context.Context, token string) (*bridge.Result, error)
	SubmitBatch(ctx context.Context, token string, in bridge.BatchRequest) (*bridge.BatchResult, error)
	FetchNodeMetrics(ctx context.Context) (*bridge.NodesResult, error)
	FetchBatchMetrics(ctx context.Context, batchID int64) (*bridge.BatchMetricsResult, error)
}

type Options struct {
	Logger          zerolog.Logger
	CORSOrigins     []string
	RateLimitPerMin int
	Version         string
}

// Gateway serves the edge routes.
type Gateway struct {
	bridge  Bridge
	logger  zerolog.Logger
	version string
}

func New(b Bridge, opts Options) *Gateway {
	if opts.Version == "" {
		opts.Version = "1.0.0"
	}
	return &Gateway{bridge: b, logger: opts.Logger, version: opts.Version}
}

// NewRouter builds the edge router around g.
func NewRouter(g *Gateway, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(opts.Logger),
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSOrigins),
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "endpoint not found"})
	})

	r.Get("/health", g.Health)
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
		r.Post("/register", g.Register)
		r.Post("/login", g.Login)
		r.Post("/logout", g.Logout)
		r.Post("/process-batch", g.ProcessBatch)
		r.Get("/metrics/nodes", g.NodeMetrics)
		r.Get("/metrics/batches/{batchID}", g.BatchMetrics)
	})
	return r
}

func (g *Gateway) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "imagebatch gateway",
		"version": g.version,
	})
}

func (g *Gateway) Register(w http.ResponseWriter, r *http.Request) {
	var in domain.NewUser
	if !decode(w, r, &in) {
		return
	}
	res, err := g.bridge.RegisterUser(r.Context(), in)
	if err != nil {
		g.callError(w, r, "register", err)
		return
	}
	if !res.Success {
		writeJSON(w, failureStatus(res.Result, http.StatusBadRequest), res)
		return
	}
	zerolog.Ctx(r.Context()).Info().Int64("user_id", res.UserID).Msg("gateway: user registered")
	writeJSON(w, http.StatusCreated, res)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (g *Gateway) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if !decode(w, r, &in) {
		return
	}
	res, err := g.bridge.Login(r.Context(), in.Username, in.Password)
	if err != nil {
		g.callError(w, r, "login", err)
		return
	}
	if !res.Success {
		writeJSON(w, failureStatus(res.Result, http.StatusUnauthorized), res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type logoutRequest struct {
	Token string `json:"token"`
}

func (g *Gateway) Logout(w http.ResponseWriter, r *http.Request) {
	var in logoutRequest
	if !decode(w, r, &in) {
		return
	}
	res, err := g.bridge.Logout(r.Context(), sessionToken(r, in.Token))
	if err != nil {
		g.callError(w, r, "logout", err)
		return
	}
	if !res.Success {
		writeJSON(w, failureStatus(*res, http.StatusBadRequest), res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type processBatchRequest struct {
	Token string `json:"token"`
	bridge.BatchRequest
}

func (g *Gateway) ProcessBatch(w http.ResponseWriter, r *http.Request) {
	var in processBatchRequest
	if !decode(w, r, &in) {
		return
	}
	token := sessionToken(r, in.Token)
	if token == "" {
		writeError(w, http.StatusBadRequest, domain.CategoryValidation, "token is required")
		return
	}
	res, err := g.bridge.SubmitBatch(r.Context(), token, in.BatchRequest)
	if err != nil {
		g.callError(w, r, "process-batch", err)
		return
	}
	if !res.Success {
		writeJSON(w, failureStatus(res.Result, http.StatusBadRequest), res)
		return
	}
	zerolog.Ctx(r.Context()).Info().
		Int64("batch_id", res.BatchID).
		Int("processed", res.ProcessedImages).
		Int("failed", res.FailedImages).
		Msg("gateway: batch processed")
	writeJSON(w, http.StatusOK, res)
}

func (g *Gateway) NodeMetrics(w http.ResponseWriter, r *http.Request) {
	res, err := g.bridge.FetchNodeMetrics(r.Context())
	if err != nil {
		g.callError(w, r, "metrics/nodes", err)
		return
	}
	if !res.Success {
		writeJSON(w, failureStatus(res.Result, http.StatusInternalServerError), res)
		return
	}
	writeJSON(w, http.StatusOK, res.Nodes)
}

func (g *Gateway) BatchMetrics(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "batchID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, domain.CategoryValidation, "batch_id must be a positive integer")
		return
	}
	res, err := g.bridge.FetchBatchMetrics(r.Context(), id)
	if err != nil {
		g.callError(w, r, "metrics/batches", err)
		return
	}
	if !res.Success {
		writeJSON(w, failureStatus(res.Result, http.StatusNotFound), res)
		return
	}
	writeJSON(w, http.StatusOK, res.Metrics)
}

// callError handles errors raised by the bridge client itself: input it
// refused to send, or a reply it could not translate.
func (g *Gateway) callError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrTranslation):
		zerolog.Ctx(r.Context()).Error().Err(err).Str("op", op).Msg("gateway: untranslatable reply")
		writeError(w, http.StatusBadGateway, domain.CategoryInternal, "invalid reply from orchestrator")
	case domain.CategoryOf(err) == domain.CategoryValidation:
		writeError(w, http.StatusBadRequest, domain.CategoryValidation, err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("op", op).Msg("gateway: call failed")
		writeError(w, http.StatusInternalServerError, domain.CategoryInternal, "internal error")
	}
}

// failureStatus picks the HTTP status for an unsuccessful bridge result.
// Transport failures are 502 when the orchestrator answered with an error
// status and 503 when it could not be reached.
func failureStatus(res bridge.Result, fallback int) int {
	switch res.Category {
	case domain.CategoryTransport:
		if res.TransportStatus > 0 {
			return http.StatusBadGateway
		}
		return http.StatusServiceUnavailable
	case domain.CategoryAuthorization:
		return http.StatusUnauthorized
	case domain.CategoryValidation:
		return http.StatusBadRequest
	case domain.CategoryConflict:
		return http.StatusConflict
	case domain.CategoryReference:
		return http.StatusNotFound
	}
	return fallback
}

// sessionToken prefers the body token and falls back to a bearer header.
func sessionToken(r *http.Request, body string) string {
	if t := strings.TrimSpace(body); t != "" {
		return t
	}
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, domain.CategoryValidation, "JSON body required")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, code int, cat domain.Category, msg string) {
	writeJSON(w, code, map[string]any{"success": false, "error": string(cat), "message": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
