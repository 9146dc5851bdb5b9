package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/armord/armord/internal/config"
	"github.com/armord/armord/internal/events"
	"github.com/armord/armord/internal/metrics"
	"github.com/armord/armord/internal/policy"
	"github.com/armord/armord/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testProfile = `profile stalwart-mail /opt/stalwart/bin/stalwart flags=(attach_disconnected) {
  network inet stream,
  network inet stream bind port 25,
  /opt/stalwart/** rwk,
}
`

func newTestApp(t *testing.T) (*App, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stalwart-mail"), []byte(testProfile), 0o644))

	cfg := config.Default()
	cfg.Profiles.Dir = dir

	broker := events.NewBroker()
	collector := metrics.New()
	manager := policy.NewManager(dir, "", broker, collector)
	require.NoError(t, manager.Reload())
	engine := policy.NewEngine(broker, collector)

	return NewApp(cfg, manager, engine, broker, collector), dir
}

func postEvaluate(t *testing.T, h http.Handler, req evaluateRequest) evaluateResponse {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/evaluate", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp evaluateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestEvaluateEndpoint(t *testing.T) {
	app, _ := newTestApp(t)
	h := app.Router()

	t.Run("allow file write", func(t *testing.T) {
		resp := postEvaluate(t, h, evaluateRequest{
			Binary: "/opt/stalwart/bin/stalwart",
			Operation: types.Operation{Kind: types.OpFileAccess, File: &types.FileAccess{
				Path: "/opt/stalwart/data/db", Requested: types.PermWrite,
			}},
		})
		assert.True(t, resp.Confined)
		assert.Equal(t, "stalwart-mail", resp.Profile)
		assert.True(t, resp.Decision.Allowed())
	})

	t.Run("deny bind to unlisted port", func(t *testing.T) {
		resp := postEvaluate(t, h, evaluateRequest{
			Binary: "/opt/stalwart/bin/stalwart",
			Operation: types.Operation{Kind: types.OpNetwork, Network: &types.NetworkOp{
				Family: types.FamilyInet, Transport: types.TransportStream,
				Direction: types.DirectionBind, Port: 8081,
			}},
		})
		assert.False(t, resp.Decision.Allowed())
		assert.Equal(t, types.DenyBindNotAuthorized, resp.Decision.Reason)
	})

	t.Run("disconnected image attaches by flag", func(t *testing.T) {
		resp := postEvaluate(t, h, evaluateRequest{
			Binary: "",
			Operation: types.Operation{Kind: types.OpFileAccess, File: &types.FileAccess{
				Path: "/opt/stalwart/queue/1", Requested: types.PermRead,
			}},
		})
		assert.True(t, resp.Confined)
		assert.Equal(t, "stalwart-mail", resp.Profile)
	})

	t.Run("unconfined binary denies fail-closed", func(t *testing.T) {
		resp := postEvaluate(t, h, evaluateRequest{
			Binary: "/usr/bin/unrelated",
			Operation: types.Operation{Kind: types.OpFileAccess, File: &types.FileAccess{
				Path: "/etc/passwd", Requested: types.PermRead,
			}},
		})
		assert.False(t, resp.Confined)
		assert.False(t, resp.Decision.Allowed())
		assert.Equal(t, types.DenyUnconfined, resp.Decision.Reason)
	})

	t.Run("explicit profile name", func(t *testing.T) {
		resp := postEvaluate(t, h, evaluateRequest{
			Profile: "stalwart-mail",
			Operation: types.Operation{Kind: types.OpNetwork, Network: &types.NetworkOp{
				Family: types.FamilyInet, Transport: types.TransportStream,
				Direction: types.DirectionConnect, Port: 60000,
			}},
		})
		assert.True(t, resp.Decision.Allowed())
	})

	t.Run("unknown profile name 404s", func(t *testing.T) {
		body, _ := json.Marshal(evaluateRequest{Profile: "nope", Operation: types.Operation{Kind: types.OpExec, Exec: &types.ExecOp{Target: "/bin/sh"}}})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/evaluate", bytes.NewReader(body)))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed body 400s", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/evaluate", bytes.NewReader([]byte("{"))))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestProfileEndpoints(t *testing.T) {
	app, _ := newTestApp(t)
	h := app.Router()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/profiles", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []profileSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "stalwart-mail", list[0].Name)
	assert.Equal(t, 1, list[0].FileRules)
	assert.Equal(t, 2, list[0].NetworkRules)
	assert.Contains(t, list[0].Flags, "attach_disconnected")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/profiles/stalwart-mail", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/profiles/other", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReloadEndpoint(t *testing.T) {
	app, dir := newTestApp(t)
	h := app.Router()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra"), []byte("profile extra /bin/extra {\n  /tmp/** rw,\n}\n"), 0o644))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/reload", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp["profiles"])
}

func TestHealthAndMetrics(t *testing.T) {
	app, _ := newTestApp(t)
	h := app.Router()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "armord_profiles_active 1")
}
