//go:build !llama

package adapter

import (
	"errors"
	"os"
	"strings"
	"sync"
)

// fileHandle is the no-CGO stand-in for a loaded model: it validates the file
// at open time and stays "alive" while the file remains present. It performs
// no model allocation; builds needing real residency use the 'llama' tag.
type fileHandle struct {
	mu     sync.Mutex
	path   string
	closed bool
}

func openHandle(path string, _, _ int) (modelHandle, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("model path is empty")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	_ = f.Close()
	return &fileHandle{path: path}, nil
}

func (h *fileHandle) Alive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	_, err := os.Stat(h.path)
	return err == nil
}

func (h *fileHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}
