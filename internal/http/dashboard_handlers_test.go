package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"greenlife-monitor/internal/models"
)

func newTestRouter(env *testEnv) *Router {
	r := NewRouter(zap.NewNop())
	r.RegisterDashboardRoutes(
		NewStreamHandler(env.hub, nil, zap.NewNop()),
		NewDashboardHandler(env.hub, env.verifier, zap.NewNop()),
	)
	r.RegisterOpsRoutes(func(ctx context.Context) error { return nil }, http.NotFoundHandler())
	return r
}

func doRequest(r http.Handler, method, path, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestDashboardHandler_View(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "uid-a")
	sess := env.liveSession(t, "tok-a")
	router := newTestRouter(env)

	w := doRequest(router, http.MethodGet, sessionsPrefix+sess.ID.String()+"/view", "tok-a", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var res Result[models.View]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, CodeOK, res.Code)
	assert.Equal(t, models.StateLive, res.Result.State)
	p, ok := res.Result.Patient.Get()
	require.True(t, ok)
	assert.Equal(t, "Ada Lovelace", p.PatientName)
	assert.Len(t, res.Result.Trend, 1)
}

func TestDashboardHandler_Authorization(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "uid-a")
	sess := env.liveSession(t, "tok-a")
	router := newTestRouter(env)
	path := sessionsPrefix + sess.ID.String() + "/view"

	w := doRequest(router, http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(router, http.MethodGet, path, "expired", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"code":60401`)

	w = doRequest(router, http.MethodGet, path, "tok-b", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(router, http.MethodGet, sessionsPrefix+uuid.NewString()+"/view", "tok-a", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(router, http.MethodGet, sessionsPrefix+"not-a-uuid/view", "tok-a", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(router, http.MethodPost, path, "tok-a", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestDashboardHandler_SetFan(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "uid-a")
	sess := env.liveSession(t, "tok-a")
	router := newTestRouter(env)
	path := sessionsPrefix + sess.ID.String() + "/fan"

	w := doRequest(router, http.MethodPost, path, "tok-a", []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodPost, path, "tok-a", []byte(`{"on":true}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Fan turned on")
	assert.Equal(t, "true", env.mr.HGet("rtdb:health_monitor", "fan"))

	// confirmed by the change feed, not by the command
	require.Eventually(t, func() bool {
		r, ok := sess.Controller.View().Latest.Get()
		return ok && r.FanOn
	}, 3*time.Second, 10*time.Millisecond)
}

func TestDashboardHandler_SetFanWhileLoading(t *testing.T) {
	env := newTestEnv(t)
	sess := env.hub.Open()
	_, err := sess.Auth.SignIn(context.Background(), "tok-a")
	require.NoError(t, err)
	router := newTestRouter(env)

	w := doRequest(router, http.MethodPost, sessionsPrefix+sess.ID.String()+"/fan", "tok-a", []byte(`{"on":true}`))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.False(t, env.mr.Exists("rtdb:health_monitor"))
}

func TestDashboardHandler_TrendExport(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "uid-a")
	sess := env.liveSession(t, "tok-a")
	router := newTestRouter(env)

	w := doRequest(router, http.MethodGet, sessionsPrefix+sess.ID.String()+"/trend.xlsx", "tok-a", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "application/vnd.openxmlformats"))

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	header, err := f.GetCellValue(trendSheet, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Time", header)
	label, err := f.GetCellValue(trendSheet, "A2")
	require.NoError(t, err)
	assert.Equal(t, "00:00:00", label)
	pulse, err := f.GetCellValue(trendSheet, "B2")
	require.NoError(t, err)
	assert.Equal(t, "72", pulse)
	patient, err := f.GetCellValue("Summary", "B2")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", patient)
}

func TestGenerateTrendExport_EmptyView(t *testing.T) {
	data, err := GenerateTrendExport(models.View{State: models.StateLoading})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(trendSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestRouter_Healthz(t *testing.T) {
	r := NewRouter(zap.NewNop())
	healthy := true
	r.RegisterOpsRoutes(func(ctx context.Context) error {
		if healthy {
			return nil
		}
		return assert.AnError
	}, http.NotFoundHandler())

	w := doRequest(r, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"code":2000`)

	healthy = false
	w = doRequest(r, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHub_OpenRemove(t *testing.T) {
	env := newTestEnv(t)
	s1 := env.hub.Open()
	s2 := env.hub.Open()
	assert.Equal(t, 2, env.hub.Len())

	got, ok := env.hub.Get(s1.ID)
	require.True(t, ok)
	assert.Same(t, s1, got)

	env.hub.Remove(s1.ID)
	env.hub.Remove(s1.ID)
	assert.Equal(t, 1, env.hub.Len())
	<-s1.Done()
	assert.Equal(t, models.StateTornDown, s1.Controller.View().State)

	env.hub.CloseAll()
	assert.Equal(t, 0, env.hub.Len())
	<-s2.Done()
}
