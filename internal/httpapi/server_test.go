package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orchd/internal/orchestrator"
	"orchd/pkg/types"
)

type fakeService struct {
	loadErr    error
	selectErr  error
	hbErr      error
	info       types.ModelInfo
	loaded     bool
	ready      bool
	heartbeats []string
}

func (f *fakeService) LoadModel(_ context.Context, id string) (types.ModelInfo, error) {
	if f.loadErr != nil {
		return types.ModelInfo{}, f.loadErr
	}
	info := f.info
	info.ID = id
	return info, nil
}

func (f *fakeService) UnloadModel(_ context.Context, id string) (types.ModelInfo, error) {
	info := f.info
	info.ID = id
	return info, nil
}

func (f *fakeService) ModelStatus(id string) (types.ModelInfo, bool, error) {
	if id != f.info.ID {
		return types.ModelInfo{}, false, orchestrator.ErrUnknownModel(id)
	}
	return f.info, f.loaded, nil
}

func (f *fakeService) AllModels() (map[string]types.ModelInfo, types.VRAMUsage) {
	return map[string]types.ModelInfo{f.info.ID: f.info}, types.VRAMUsage{TotalMB: 500, UsedMB: 100, RemainingMB: 400}
}

func (f *fakeService) SelectModel(_ context.Context, _ string, _ int) (types.ModelInfo, error) {
	if f.selectErr != nil {
		return types.ModelInfo{}, f.selectErr
	}
	return f.info, nil
}

func (f *fakeService) ObserveHeartbeat(id string) error {
	if f.hbErr != nil {
		return f.hbErr
	}
	f.heartbeats = append(f.heartbeats, id)
	return nil
}

func (f *fakeService) Ready() bool { return f.ready }

func newTestServer(svc Service) *httptest.Server {
	return httptest.NewServer(NewMux(svc, zerolog.Nop()))
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestGetModels(t *testing.T) {
	svc := &fakeService{info: types.ModelInfo{Model: types.Model{ID: "m1"}, Status: types.StatusOnline}}
	ts := newTestServer(svc)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/models")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Models    map[string]types.ModelInfo `json:"models"`
		VRAMUsage types.VRAMUsage            `json:"vram_usage"`
	}
	decodeBody(t, resp, &body)
	assert.Contains(t, body.Models, "m1")
	assert.Equal(t, 400, body.VRAMUsage.RemainingMB)
}

func TestGetModelNotFound(t *testing.T) {
	svc := &fakeService{info: types.ModelInfo{Model: types.Model{ID: "m1"}}}
	ts := newTestServer(svc)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/models/ghost")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var body types.ErrorResponse
	decodeBody(t, resp, &body)
	assert.Contains(t, body.Error, "ghost")
}

func TestPostLoad(t *testing.T) {
	svc := &fakeService{info: types.ModelInfo{Model: types.Model{ID: "m1"}, Status: types.StatusOnline}}
	ts := newTestServer(svc)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/models/m1/load", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Model types.ModelInfo `json:"model"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, types.StatusOnline, body.Model.Status)
}

func TestPostLoadBudgetExceeded(t *testing.T) {
	svc := &fakeService{loadErr: orchestrator.ErrBudgetExceeded("m1", 300)}
	ts := newTestServer(svc)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/models/m1/load", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestPostLoadUnreachable(t *testing.T) {
	svc := &fakeService{loadErr: orchestrator.ErrBackendUnreachable("m1", assert.AnError)}
	ts := newTestServer(svc)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/models/m1/load", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestPostSelect(t *testing.T) {
	svc := &fakeService{info: types.ModelInfo{Model: types.Model{ID: "chatty"}, Status: types.StatusOnline}}
	ts := newTestServer(svc)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/select", "application/json",
		strings.NewReader(`{"task_type":"chat","context_size":4096}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		SelectedModel string `json:"selected_model"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, "chatty", body.SelectedModel)
}

func TestPostSelectRejectsWrongContentType(t *testing.T) {
	ts := newTestServer(&fakeService{})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/select", "text/plain", strings.NewReader("chat"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestPostSelectRejectsBadJSON(t *testing.T) {
	ts := newTestServer(&fakeService{})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/select", "application/json", strings.NewReader("{nope"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHeartbeatIngest(t *testing.T) {
	svc := &fakeService{}
	ts := newTestServer(svc)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/heartbeat/svc-1", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []string{"svc-1"}, svc.heartbeats)
}

func TestHeartbeatUnknownModel(t *testing.T) {
	svc := &fakeService{hbErr: orchestrator.ErrUnknownModel("svc-1")}
	ts := newTestServer(svc)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/heartbeat/svc-1", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthAndReadiness(t *testing.T) {
	svc := &fakeService{}
	ts := newTestServer(svc)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	svc.ready = true
	resp, err = http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusEndpoint(t *testing.T) {
	svc := &fakeService{info: types.ModelInfo{Model: types.Model{ID: "m1"}, Status: types.StatusOnline}, ready: true}
	ts := newTestServer(svc)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Ready    bool           `json:"ready"`
		ByStatus map[string]int `json:"by_status"`
	}
	decodeBody(t, resp, &body)
	assert.True(t, body.Ready)
	assert.Equal(t, 1, body.ByStatus["online"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(&fakeService{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
