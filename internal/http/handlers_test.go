package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roniherschmann/shorty-redirect/internal/cache"
	"github.com/roniherschmann/shorty-redirect/internal/config"
	"github.com/roniherschmann/shorty-redirect/internal/core"
	"github.com/roniherschmann/shorty-redirect/internal/store"
)

type inlineSink struct {
	t   *testing.T
	rec *core.Recorder
}

func (s inlineSink) Submit(ev store.ClickEvent) bool {
	require.NoError(s.t, s.rec.Record(context.Background(), ev))
	return true
}

type testServer struct {
	handler http.Handler
	svc     *core.Service
	store   *store.Memory
}

func newTestServer(t *testing.T, checks ...Check) *testServer {
	t.Helper()
	st := store.NewMemory()
	agg := core.NewAggregator(st, cache.NewMemory(time.Minute), time.Minute)
	rec := core.NewRecorder(st, agg)
	svc := core.NewService(st, agg, inlineSink{t: t, rec: rec}, nil)

	cfg := config.Defaults()
	cfg.PasswordRateRPS = 0.001
	cfg.PasswordRateBurst = 3
	return &testServer{handler: NewRouter(cfg, svc, checks...), svc: svc, store: st}
}

func (s *testServer) link(t *testing.T, n core.NewLink) *store.Link {
	t.Helper()
	if n.Target == "" {
		n.Target = "https://example.com/" + n.Code
	}
	l, err := s.svc.CreateLink(context.Background(), n)
	require.NoError(t, err)
	return l
}

func (s *testServer) get(path string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "192.0.2.10:5555"
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return body
}

func TestRedirect_Found(t *testing.T) {
	s := newTestServer(t)
	l := s.link(t, core.NewLink{Code: "abc123", Target: "https://example.com/landing"})

	rr := s.get("/abc123", "User-Agent", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_2 like Mac OS X) Mobile Safari/604.1")
	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "https://example.com/landing", rr.Header().Get("Location"))
	assert.Equal(t, 1, s.store.ClickCount(l.ID))
}

func TestRedirect_DisabledMatchesMissing(t *testing.T) {
	s := newTestServer(t)
	s.link(t, core.NewLink{Code: "off01", Disabled: true})

	missing := s.get("/nope01")
	disabled := s.get("/off01")
	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.Equal(t, missing.Code, disabled.Code)
	assert.JSONEq(t, missing.Body.String(), disabled.Body.String())
	assert.Equal(t, false, decode(t, missing)["success"])
}

func TestRedirect_InvalidCodeIsNotFound(t *testing.T) {
	s := newTestServer(t)
	rr := s.get("/favicon.ico")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRedirect_Expired(t *testing.T) {
	s := newTestServer(t)
	past := time.Now().Add(-time.Minute)
	s.link(t, core.NewLink{Code: "old01", Password: "hunter2", ExpiresAt: &past})

	rr := s.get("/old01?password=hunter2")
	assert.Equal(t, http.StatusGone, rr.Code)
	assert.Contains(t, decode(t, rr)["message"], "expired")
}

func TestRedirect_QuotaScenario(t *testing.T) {
	s := newTestServer(t)
	l := s.link(t, core.NewLink{Code: "abc123", MaxClicks: 2})

	assert.Equal(t, http.StatusFound, s.get("/abc123", "X-Forwarded-For", "1.1.1.1").Code)
	assert.Equal(t, http.StatusFound, s.get("/abc123", "X-Forwarded-For", "2.2.2.2").Code)

	c, err := s.svc.Counters(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.TotalClicks)
	assert.Equal(t, int64(2), c.UniqueClicks)

	rr := s.get("/abc123", "X-Forwarded-For", "3.3.3.3")
	assert.Equal(t, http.StatusGone, rr.Code)
	assert.Contains(t, decode(t, rr)["message"], "maximum clicks")
}

func TestRedirect_PasswordScenario(t *testing.T) {
	s := newTestServer(t)
	s.link(t, core.NewLink{Code: "secret1", Target: "https://example.com/secret", Password: "hunter2"})

	none := s.get("/secret1")
	wrong := s.get("/secret1?password=wrong")
	require.Equal(t, http.StatusUnauthorized, none.Code)
	require.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.JSONEq(t, none.Body.String(), wrong.Body.String())
	assert.Equal(t, true, decode(t, none)["requiresPassword"])

	ok := s.get("/secret1?password=hunter2")
	assert.Equal(t, http.StatusFound, ok.Code)
	assert.Equal(t, "https://example.com/secret", ok.Header().Get("Location"))
}

func TestRedirect_PasswordAttemptsAreLimited(t *testing.T) {
	s := newTestServer(t)
	s.link(t, core.NewLink{Code: "secret2", Password: "hunter2"})

	for i := 0; i < 3; i++ {
		rr := s.get("/secret2?password=guess"+strconv.Itoa(i), "X-Forwarded-For", "7.7.7.7")
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	}
	rr := s.get("/secret2?password=hunter2", "X-Forwarded-For", "7.7.7.7")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	// other clients keep their own budget
	rr = s.get("/secret2?password=hunter2", "X-Forwarded-For", "8.8.8.8")
	assert.Equal(t, http.StatusFound, rr.Code)

	// requests without a password are not limited
	rr = s.get("/secret2", "X-Forwarded-For", "7.7.7.7")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestPreview(t *testing.T) {
	s := newTestServer(t)
	s.link(t, core.NewLink{Code: "prev01", Title: "Docs", Password: "hunter2", MaxClicks: 1})

	rr := s.get("/prev01/preview")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "prev01", data["shortCode"])
	assert.Equal(t, "Docs", data["title"])
	assert.Equal(t, true, data["requiresPassword"])
	assert.Equal(t, true, data["isActive"])
	assert.EqualValues(t, 0, data["totalClicks"])
	assert.NotContains(t, rr.Body.String(), "$2a$", "hash leaked")
	assert.NotContains(t, data, "passwordHash")

	// preview does not use up the quota
	s.get("/prev01/preview")
	assert.Equal(t, http.StatusFound, s.get("/prev01?password=hunter2").Code)

	assert.Equal(t, http.StatusNotFound, s.get("/missing/preview").Code)
}

func TestStats(t *testing.T) {
	s := newTestServer(t)
	l := s.link(t, core.NewLink{Code: "stat01"})
	s.get("/stat01", "X-Forwarded-For", "1.1.1.1")
	s.get("/stat01", "X-Forwarded-For", "1.1.1.1")

	rr := s.get("/api/v1/links/" + strconv.FormatInt(l.ID, 10) + "/stats")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.EqualValues(t, 2, body["totalClicks"])
	assert.EqualValues(t, 1, body["uniqueClicks"])
	assert.NotEmpty(t, body["lastClickAt"])

	assert.Equal(t, http.StatusNotFound, s.get("/api/v1/links/9999/stats").Code)
	assert.Equal(t, http.StatusBadRequest, s.get("/api/v1/links/abc/stats").Code)
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t, Check{Name: "store", Ping: func(context.Context) error { return nil }})
	assert.Equal(t, http.StatusOK, s.get("/healthz").Code)
	assert.Equal(t, http.StatusOK, s.get("/readyz").Code)

	s = newTestServer(t, Check{Name: "cache", Ping: func(context.Context) error { return errors.New("connection refused") }})
	rr := s.get("/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "connection refused")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.get("/nope01")
	rr := s.get("/metrics")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "redirect_requests_total")
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "203.0.113.5:1234", "203.0.113.5"},
		{"first forwarded hop", map[string]string{"X-Forwarded-For": "1.2.3.4, 10.0.0.1"}, "10.0.0.2:1", "1.2.3.4"},
		{"real ip", map[string]string{"X-Real-Ip": "5.6.7.8"}, "10.0.0.2:1", "5.6.7.8"},
		{"garbage forwarded falls through", map[string]string{"X-Forwarded-For": "unknown", "X-Real-Ip": "5.6.7.8"}, "10.0.0.2:1", "5.6.7.8"},
		{"ipv6", map[string]string{"X-Forwarded-For": "2001:db8::1"}, "10.0.0.2:1", "2001:db8::1"},
		{"no port", nil, "203.0.113.9", "203.0.113.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(r))
		})
	}
}
