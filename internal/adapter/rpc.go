package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"orchd/pkg/types"
)

// rpcAdapter drives local-process services over a JSON command endpoint:
// POST {"command": ..., "model_id": ...} -> {"status": ..., ...}.
// The remote-service adapter wraps this with a circuit breaker.
type rpcAdapter struct {
	opts        Options
	loadTimeout time.Duration
	log         zerolog.Logger
}

func newRPCAdapter(opts Options, loadTimeout time.Duration) *rpcAdapter {
	return &rpcAdapter{
		opts:        opts,
		loadTimeout: loadTimeout,
		log:         opts.Logger.With().Str("adapter", "rpc").Logger(),
	}
}

type rpcRequest struct {
	Command string `json:"command"`
	ModelID string `json:"model_id,omitempty"`
}

// baseURL normalizes a configured address into an http base URL.
func baseURL(addr string) string {
	if strings.Contains(addr, "://") {
		return strings.TrimRight(addr, "/")
	}
	return "http://" + strings.TrimRight(addr, "/")
}

// call performs one command round trip and classifies the outcome.
// Transport failures map to StatusOffline, malformed or non-2xx responses to
// StatusError; on success the decoded body is returned.
func (a *rpcAdapter) call(ctx context.Context, m types.Model, command string, timeout time.Duration) (map[string]any, Result) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, _ := json.Marshal(rpcRequest{Command: command, ModelID: m.ID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL(m.Address)+"/rpc", bytes.NewReader(body))
	if err != nil {
		return nil, Result{Status: types.StatusError, Err: fmt.Errorf("%s: build request: %w", command, err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.opts.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, Result{Status: types.StatusOffline, Err: fmt.Errorf("%s: backend unreachable: %w", command, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, Result{Status: types.StatusError, Err: fmt.Errorf("%s: backend http %s: %s", command, resp.Status, strings.TrimSpace(string(b)))}
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		return nil, Result{Status: types.StatusError, Err: fmt.Errorf("%s: malformed backend response: %w", command, err)}
	}
	return out, Result{Status: types.StatusOnline}
}

func (a *rpcAdapter) Load(ctx context.Context, m types.Model) Result {
	body, res := a.call(ctx, m, "ensure_loaded", a.loadTimeout)
	if res.Err != nil {
		return res
	}
	switch fmt.Sprint(body["status"]) {
	case "loaded", "ready", "online":
		return Result{Status: types.StatusOnline}
	case "loading":
		return Result{Status: types.StatusLoading}
	case "failure", "error":
		return Result{Status: types.StatusError, Err: fmt.Errorf("ensure_loaded: backend reported %v", body["status"])}
	default:
		return Result{Status: types.StatusError, Err: fmt.Errorf("ensure_loaded: unexpected backend status %v", body["status"])}
	}
}

func (a *rpcAdapter) Unload(ctx context.Context, m types.Model) Result {
	_, res := a.call(ctx, m, "unload", a.opts.FastTimeout)
	if res.Err != nil {
		return res
	}
	return Result{Status: types.StatusAvailable}
}

func (a *rpcAdapter) CheckHealth(ctx context.Context, m types.Model) Result {
	body, res := a.call(ctx, m, "health_check", a.opts.FastTimeout)
	if res.Err != nil {
		return res
	}
	// Per-model expected-field predicate takes precedence over the generic
	// status field when configured.
	if m.ExpectField != "" {
		got, ok := body[m.ExpectField]
		if !ok || fmt.Sprint(got) != m.ExpectValue {
			return Result{
				Status: types.StatusUnhealthy,
				Err:    fmt.Errorf("health_check: field %q = %v, want %q", m.ExpectField, got, m.ExpectValue),
			}
		}
		return Result{Status: types.StatusOnline}
	}
	switch fmt.Sprint(body["status"]) {
	case "ok", "healthy", "loaded", "online", "ready":
		return Result{Status: types.StatusOnline}
	case "loading":
		return Result{Status: types.StatusLoading}
	case "not_loaded", "unloaded", "available":
		return Result{Status: types.StatusAvailable}
	default:
		return Result{Status: types.StatusUnhealthy, Err: fmt.Errorf("health_check: unexpected backend status %v", body["status"])}
	}
}
