package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"orchd/pkg/types"
)

// ollamaAdapter manages models on a third-party inference server that owns
// its own lifecycle. Load and unload are advisory: a warm-up request and a
// zero keep_alive hint respectively. Health is tag presence in the server's
// in-memory model list (/api/ps), not the on-disk catalog (/api/tags): a
// model that is merely downloaded must not count as resident.
type ollamaAdapter struct {
	opts Options
	log  zerolog.Logger
}

func newOllamaAdapter(opts Options) *ollamaAdapter {
	return &ollamaAdapter{opts: opts, log: opts.Logger.With().Str("adapter", "ollama").Logger()}
}

type ollamaTag struct {
	Name string `json:"name"`
}

type ollamaTagList struct {
	Models []ollamaTag `json:"models"`
}

// tagMatches accepts exact names and the implicit ":latest" suffix.
func tagMatches(have, want string) bool {
	return have == want || have == want+":latest" || strings.TrimSuffix(have, ":latest") == want
}

func (a *ollamaAdapter) listLoaded(ctx context.Context, m types.Model) (*ollamaTagList, Result) {
	ctx, cancel := context.WithTimeout(ctx, a.opts.FastTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL(m.APIBase)+"/api/ps", nil)
	if err != nil {
		return nil, Result{Status: types.StatusError, Err: fmt.Errorf("list loaded: %w", err)}
	}
	resp, err := a.opts.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, Result{Status: types.StatusOffline, Err: fmt.Errorf("list loaded: server unreachable: %w", err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, Result{Status: types.StatusError, Err: fmt.Errorf("list loaded: server http %s", resp.Status)}
	}
	var tags ollamaTagList
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, Result{Status: types.StatusError, Err: fmt.Errorf("list loaded: malformed response: %w", err)}
	}
	return &tags, Result{}
}

// generate issues an empty generate request carrying a keep_alive hint.
// The server decides whether to honor it.
func (a *ollamaAdapter) generate(ctx context.Context, m types.Model, keep any) Result {
	ctx, cancel := context.WithTimeout(ctx, a.opts.SlowTimeout)
	defer cancel()

	payload, _ := json.Marshal(map[string]any{
		"model":      m.ServerTag(),
		"keep_alive": keep,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL(m.APIBase)+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return Result{Status: types.StatusError, Err: fmt.Errorf("generate: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.opts.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return Result{Status: types.StatusOffline, Err: fmt.Errorf("generate: server unreachable: %w", err)}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{Status: types.StatusError, Err: fmt.Errorf("generate: server http %s", resp.Status)}
	}
	return Result{Status: types.StatusOnline}
}

func (a *ollamaAdapter) Load(ctx context.Context, m types.Model) Result {
	// Warm-up: empty prompt with a long keep_alive pulls the model into the
	// server's memory.
	return a.generate(ctx, m, "10m")
}

func (a *ollamaAdapter) Unload(ctx context.Context, m types.Model) Result {
	// keep_alive: 0 asks the server to drop the model; it cannot be forced.
	res := a.generate(ctx, m, 0)
	if res.Err != nil {
		return res
	}
	return Result{Status: types.StatusAvailable}
}

func (a *ollamaAdapter) CheckHealth(ctx context.Context, m types.Model) Result {
	tags, res := a.listLoaded(ctx, m)
	if res.Err != nil {
		return res
	}
	for _, t := range tags.Models {
		if tagMatches(t.Name, m.ServerTag()) {
			return Result{Status: types.StatusOnline}
		}
	}
	return Result{Status: types.StatusAvailable}
}
