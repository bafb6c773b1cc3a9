package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qbot/internal/metrics"
	"qbot/internal/modules/health/service"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type sessions []string

func (s sessions) Active() []string { return s }

func newMux(t *testing.T, pingErr error) (*http.ServeMux, *service.State, *metrics.Metrics) {
	t.Helper()
	reg, registerer := NewRegistry()
	m := metrics.New(registerer)
	st := service.NewState()
	mux := NewMux(Probes{
		State:    st,
		Broker:   pinger{err: pingErr},
		Sessions: sessions{"a", "b"},
		Metrics:  m,
		Registry: reg,
	})
	return mux, st, m
}

func get(mux *http.ServeMux, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestReadyz(t *testing.T) {
	mux, st, _ := newMux(t, nil)

	assert.Equal(t, http.StatusOK, get(mux, "/livez").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(mux, "/readyz").Code)

	st.SetReady(true)
	assert.Equal(t, http.StatusOK, get(mux, "/readyz").Code)

	down, st2, _ := newMux(t, errors.New("connection refused"))
	st2.SetReady(true)
	rec := get(down, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestHealthz(t *testing.T) {
	mux, st, m := newMux(t, nil)
	st.SetReady(true)
	st.ClientConnected()
	m.ObserveCandle()

	rec := get(mux, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["ready"])
	assert.Equal(t, "ok", body["broker"])
	assert.EqualValues(t, 2, body["activeSessions"])
	assert.EqualValues(t, 1, body["clients"])
	assert.NotZero(t, body["lastCandleUnix"])
}

func TestMetrics(t *testing.T) {
	mux, _, m := newMux(t, nil)
	m.ObserveCandle()
	m.SessionStops.WithLabelValues("sentinel").Inc()

	rec := get(mux, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "qbot_candles_processed_total 1"))
	assert.Contains(t, body, `qbot_session_stops_total{reason="sentinel"} 1`)
	assert.Contains(t, body, "go_goroutines")
}
