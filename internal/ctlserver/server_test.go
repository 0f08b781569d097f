package ctlserver

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orchd/pkg/types"
)

type fakeService struct {
	loadErr   error
	selectErr error
	statusErr error
	info      types.ModelInfo
	loaded    bool
	usage     types.VRAMUsage
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
	if f.statusErr != nil {
		return types.ModelInfo{}, false, f.statusErr
	}
	info := f.info
	info.ID = id
	return info, f.loaded, nil
}

func (f *fakeService) AllModels() (map[string]types.ModelInfo, types.VRAMUsage) {
	return map[string]types.ModelInfo{f.info.ID: f.info}, f.usage
}

func (f *fakeService) SelectModel(_ context.Context, _ string, _ int) (types.ModelInfo, error) {
	if f.selectErr != nil {
		return types.ModelInfo{}, f.selectErr
	}
	return f.info, nil
}

func (f *fakeService) Usage() types.VRAMUsage { return f.usage }

type testClient struct {
	conn net.Conn
	enc  *json.Encoder
	dec  *json.Decoder
}

func startServer(t *testing.T, svc Service) (*Server, *testClient) {
	t.Helper()
	srv := New(svc, zerolog.Nop())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(ln)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	return srv, &testClient{conn: conn, enc: json.NewEncoder(conn), dec: json.NewDecoder(conn)}
}

func (c *testClient) roundTrip(t *testing.T, req types.Request) types.Response {
	t.Helper()
	require.NoError(t, c.enc.Encode(req))
	var resp types.Response
	require.NoError(t, c.dec.Decode(&resp))
	return resp
}

func TestLoadModelRequest(t *testing.T) {
	svc := &fakeService{info: types.ModelInfo{Model: types.Model{ID: "m1"}, Status: types.StatusOnline}}
	_, c := startServer(t, svc)

	resp := c.roundTrip(t, types.Request{RequestType: types.ActionLoadModel, RequestID: "req-1", ModelID: "m1"})
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "req-1", resp.RequestID)
	require.NotNil(t, resp.ModelInfo)
	assert.Equal(t, "m1", resp.ModelInfo.ID)
	assert.Equal(t, types.StatusOnline, resp.ModelInfo.Status)
}

func TestLoadModelMissingID(t *testing.T) {
	_, c := startServer(t, &fakeService{})
	resp := c.roundTrip(t, types.Request{RequestType: types.ActionLoadModel, RequestID: "req-2"})
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "req-2", resp.RequestID)
	assert.Contains(t, resp.Message, "model_id")
}

func TestLegacyActionKey(t *testing.T) {
	svc := &fakeService{info: types.ModelInfo{Model: types.Model{ID: "m1"}}, loaded: true}
	_, c := startServer(t, svc)

	resp := c.roundTrip(t, types.Request{Action: types.ActionGetModelStatus, ModelID: "m1"})
	assert.Equal(t, "success", resp.Status)
	require.NotNil(t, resp.IsLoaded)
	assert.True(t, *resp.IsLoaded)
}

func TestGetAllModels(t *testing.T) {
	svc := &fakeService{
		info:  types.ModelInfo{Model: types.Model{ID: "m1"}, Status: types.StatusAvailable},
		usage: types.VRAMUsage{TotalMB: 500, UsedMB: 100, RemainingMB: 400},
	}
	_, c := startServer(t, svc)

	resp := c.roundTrip(t, types.Request{RequestType: types.ActionGetAllModels})
	assert.Equal(t, "success", resp.Status)
	assert.Contains(t, resp.Models, "m1")
	require.NotNil(t, resp.VRAMUsage)
	assert.Equal(t, 500, resp.VRAMUsage.TotalMB)
	assert.Equal(t, 400, resp.VRAMUsage.RemainingMB)
}

func TestSelectModelRequest(t *testing.T) {
	svc := &fakeService{
		info:  types.ModelInfo{Model: types.Model{ID: "chatty"}, Status: types.StatusOnline},
		usage: types.VRAMUsage{TotalMB: 500, UsedMB: 100, RemainingMB: 400},
	}
	_, c := startServer(t, svc)

	resp := c.roundTrip(t, types.Request{RequestType: types.ActionSelectModel, TaskType: "chat", ContextSize: 4096})
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "chatty", resp.SelectedModel)
	require.NotNil(t, resp.ModelInfo)
	require.NotNil(t, resp.VRAMUsage)
	assert.Equal(t, 400, resp.VRAMUsage.RemainingMB)
}

func TestHealthCheckRequest(t *testing.T) {
	svc := &fakeService{
		info:  types.ModelInfo{Model: types.Model{ID: "m1"}, Status: types.StatusOnline},
		usage: types.VRAMUsage{TotalMB: 500, RemainingMB: 500},
	}
	_, c := startServer(t, svc)

	resp := c.roundTrip(t, types.Request{RequestType: types.ActionHealthCheck, RequestID: "hc"})
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "ok", resp.Message)
	assert.Equal(t, "hc", resp.RequestID)
	assert.Contains(t, resp.Models, "m1")
	require.NotNil(t, resp.VRAMUsage)
	assert.Equal(t, 500, resp.VRAMUsage.TotalMB)
}

func TestUnknownAction(t *testing.T) {
	_, c := startServer(t, &fakeService{})
	resp := c.roundTrip(t, types.Request{RequestType: "reticulate_splines", RequestID: "x"})
	assert.Equal(t, "error", resp.Status)
	assert.Contains(t, resp.Message, "unknown action")
}

func TestMultipleRequestsPerConnection(t *testing.T) {
	svc := &fakeService{info: types.ModelInfo{Model: types.Model{ID: "m1"}}}
	_, c := startServer(t, svc)

	for i := 0; i < 3; i++ {
		resp := c.roundTrip(t, types.Request{RequestType: types.ActionHealthCheck})
		assert.Equal(t, "success", resp.Status)
	}
}

func TestMalformedJSONClosesConnection(t *testing.T) {
	_, c := startServer(t, &fakeService{})
	_, err := c.conn.Write([]byte("{not json}\n"))
	require.NoError(t, err)

	var resp types.Response
	require.NoError(t, c.dec.Decode(&resp))
	assert.Equal(t, "error", resp.Status)
	assert.Contains(t, resp.Message, "malformed")

	// The server hangs up after a syntax error.
	assert.Error(t, c.dec.Decode(&resp))
}

func TestServiceErrorPropagates(t *testing.T) {
	svc := &fakeService{loadErr: assert.AnError}
	_, c := startServer(t, svc)
	resp := c.roundTrip(t, types.Request{RequestType: types.ActionLoadModel, ModelID: "m1"})
	assert.Equal(t, "error", resp.Status)
	assert.NotEmpty(t, resp.Message)
}
