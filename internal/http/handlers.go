package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/roniherschmann/shorty-redirect/internal/config"
	"github.com/roniherschmann/shorty-redirect/internal/core"
	"github.com/roniherschmann/shorty-redirect/internal/metrics"
	"github.com/roniherschmann/shorty-redirect/internal/shortid"
)

// Check is a dependency probed by /readyz.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

type Router struct {
	svc     *core.Service
	limiter *rateLimiter
	checks  []Check
}

func NewRouter(cfg config.Config, svc *core.Service, checks ...Check) http.Handler {
	r := chi.NewRouter()
	// Logging middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(log.Logger))
	r.Use(hlog.RequestIDHandler("req_id", "Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", dur).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)

	api := &Router{
		svc:     svc,
		limiter: newRateLimiter(cfg.PasswordRateRPS, cfg.PasswordRateBurst),
		checks:  checks,
	}

	r.MethodFunc(http.MethodGet, "/healthz", api.handleHealth)
	r.MethodFunc(http.MethodGet, "/readyz", api.handleReady)
	r.MethodFunc(http.MethodGet, "/metrics", metrics.Handler)

	r.MethodFunc(http.MethodGet, "/api/v1/links/{id}/stats", api.handleStats)

	// Redirect path
	r.MethodFunc(http.MethodGet, "/{code}/preview", api.handlePreview)
	r.MethodFunc(http.MethodGet, "/{code}", api.handleRedirect)

	return r
}

type errorResp struct {
	Success          bool   `json:"success"`
	Message          string `json:"message"`
	RequiresPassword bool   `json:"requiresPassword,omitempty"`
}

type dataResp struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, errorResp{Message: msg}, status)
}

func (rt *Router) handleRedirect(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	password := r.URL.Query().Get("password")
	ip := clientIP(r)

	if password != "" && !rt.limiter.Allow(ip) {
		metrics.PasswordRateLimited.Inc()
		metrics.Redirects.WithLabelValues("rate_limited").Inc()
		writeError(w, http.StatusTooManyRequests, "Too many password attempts")
		return
	}

	var (
		target string
		err    = core.ErrNotFound
	)
	if shortid.Valid(code) {
		target, err = rt.svc.Resolve(r.Context(), code, password, core.Visit{
			IP:        ip,
			UserAgent: r.UserAgent(),
			Referer:   r.Referer(),
		})
	}

	switch {
	case err == nil:
		metrics.Redirects.WithLabelValues("redirect").Inc()
		http.Redirect(w, r, target, http.StatusFound)
	case errors.Is(err, core.ErrNotFound):
		metrics.Redirects.WithLabelValues("not_found").Inc()
		writeError(w, http.StatusNotFound, "Short link not found")
	case errors.Is(err, core.ErrExpired):
		metrics.Redirects.WithLabelValues("expired").Inc()
		writeError(w, http.StatusGone, "Short link has expired")
	case errors.Is(err, core.ErrGone):
		metrics.Redirects.WithLabelValues("quota_reached").Inc()
		writeError(w, http.StatusGone, "Short link has reached its maximum clicks")
	case errors.Is(err, core.ErrPasswordRequired):
		metrics.Redirects.WithLabelValues("password_required").Inc()
		writeJSON(w, errorResp{Message: "Password required", RequiresPassword: true}, http.StatusUnauthorized)
	default:
		metrics.Redirects.WithLabelValues("error").Inc()
		hlog.FromRequest(r).Error().Err(err).Str("code", code).Msg("resolve")
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (rt *Router) handlePreview(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	metrics.Previews.Inc()
	if !shortid.Valid(code) {
		writeError(w, http.StatusNotFound, "Short link not found")
		return
	}
	p, err := rt.svc.Preview(r.Context(), code)
	switch {
	case err == nil:
		writeJSON(w, dataResp{Success: true, Data: p}, http.StatusOK)
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, "Short link not found")
	default:
		hlog.FromRequest(r).Error().Err(err).Str("code", code).Msg("preview")
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (rt *Router) handleStats(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid link id")
		return
	}
	c, err := rt.svc.Counters(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, c, http.StatusOK)
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, "Link not found")
	default:
		hlog.FromRequest(r).Error().Err(err).Int64("link_id", id).Msg("counters")
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (rt *Router) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := make(map[string]string)
	for _, c := range rt.checks {
		if err := c.Ping(ctx); err != nil {
			failed[c.Name] = err.Error()
		}
	}
	if len(failed) > 0 {
		hlog.FromRequest(r).Warn().Interface("failed", failed).Msg("not ready")
		writeJSON(w, map[string]any{"status": "unavailable", "failed": failed}, http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-Ip, then the
// connection address. Header values that are not IPs are skipped.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-Ip"))); ip != nil {
		return ip.String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
