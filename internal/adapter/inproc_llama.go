//go:build llama

package adapter

import (
	"errors"
	"strings"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"
)

// llamaHandle wraps a loaded llama.cpp model. Compiled only with the 'llama'
// build tag so default builds and CI stay CGO-free.
type llamaHandle struct {
	mu    sync.Mutex
	model *llama.LLama
}

func openHandle(path string, ctxSize, threads int) (modelHandle, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("model path is empty")
	}
	mo := []llama.ModelOption{}
	if ctxSize > 0 {
		mo = append(mo, llama.SetContext(ctxSize))
	}
	m, err := llama.New(path, mo...)
	if err != nil {
		return nil, err
	}
	return &llamaHandle{model: m}, nil
}

func (h *llamaHandle) Alive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.model != nil
}

func (h *llamaHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.model != nil {
		h.model.Free()
		h.model = nil
	}
	return nil
}
