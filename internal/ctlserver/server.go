package ctlserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"orchd/pkg/types"
)

// Service defines the orchestrator methods required by the control plane.
type Service interface {
	LoadModel(ctx context.Context, id string) (types.ModelInfo, error)
	UnloadModel(ctx context.Context, id string) (types.ModelInfo, error)
	ModelStatus(id string) (types.ModelInfo, bool, error)
	AllModels() (map[string]types.ModelInfo, types.VRAMUsage)
	SelectModel(ctx context.Context, taskType string, contextSize int) (types.ModelInfo, error)
	Usage() types.VRAMUsage
}

// Server accepts persistent TCP connections carrying newline-delimited JSON
// requests and answers each with a single JSON response. A malformed request
// fails that request, never the server.
type Server struct {
	svc Service
	log zerolog.Logger

	// RequestTimeout bounds a single request's handling. Zero disables it.
	RequestTimeout time.Duration

	mu     sync.Mutex
	ln     net.Listener
	conns  map[string]net.Conn
	wg     sync.WaitGroup
	closed bool
}

func New(svc Service, log zerolog.Logger) *Server {
	return &Server{
		svc:            svc,
		log:            log.With().Str("component", "ctlserver").Logger(),
		RequestTimeout: 2 * time.Minute,
		conns:          make(map[string]net.Conn),
	}
}

// ListenAndServe binds addr and serves until Shutdown. A bind failure is the
// only fatal outcome.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve runs the accept loop on ln. It returns nil after Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return errors.New("ctlserver: server closed")
	}
	s.ln = ln
	s.mu.Unlock()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("control plane listening")
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			s.log.Warn().Err(err).Msg("accept failed")
			continue
		}
		id := uuid.NewString()
		s.mu.Lock()
		s.conns[id] = conn
		s.mu.Unlock()
		s.wg.Add(1)
		go s.handleConn(id, conn)
	}
}

// Addr returns the bound address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Shutdown stops accepting, closes open connections and waits for handlers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	if s.ln != nil {
		s.ln.Close()
	}
	for _, c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) handleConn(id string, conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, id)
		s.mu.Unlock()
	}()

	log := s.log.With().Str("conn", id).Str("remote", conn.RemoteAddr().String()).Logger()
	log.Debug().Msg("connection opened")

	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var req types.Request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				log.Debug().Msg("connection closed")
				return
			}
			// The decoder's position is unreliable after a syntax error, so
			// answer once and drop the connection.
			log.Warn().Err(err).Msg("malformed request")
			_ = enc.Encode(types.Error("", "malformed JSON request: "+err.Error()))
			return
		}
		resp := s.dispatch(req)
		if err := enc.Encode(resp); err != nil {
			log.Warn().Err(err).Msg("write response failed")
			return
		}
	}
}

func (s *Server) dispatch(req types.Request) types.Response {
	ctx := context.Background()
	var cancel context.CancelFunc = func() {}
	if s.RequestTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.RequestTimeout)
	}
	defer cancel()

	start := time.Now()
	kind := req.Kind()
	resp := s.handle(ctx, kind, req)
	ev := s.log.Info()
	if resp.Status != "success" {
		ev = s.log.Warn().Str("message", resp.Message)
	}
	ev.Str("action", kind).Str("model", req.ModelID).Dur("dur", time.Since(start)).Msg("request handled")
	return resp
}

func (s *Server) handle(ctx context.Context, kind string, req types.Request) types.Response {
	switch kind {
	case types.ActionLoadModel:
		if req.ModelID == "" {
			return types.Error(req.RequestID, "model_id is required")
		}
		info, err := s.svc.LoadModel(ctx, req.ModelID)
		if err != nil {
			return types.Error(req.RequestID, err.Error())
		}
		resp := types.Success(req.RequestID)
		resp.ModelInfo = &info
		return resp

	case types.ActionUnloadModel:
		if req.ModelID == "" {
			return types.Error(req.RequestID, "model_id is required")
		}
		info, err := s.svc.UnloadModel(ctx, req.ModelID)
		if err != nil {
			return types.Error(req.RequestID, err.Error())
		}
		resp := types.Success(req.RequestID)
		resp.ModelInfo = &info
		return resp

	case types.ActionGetModelStatus:
		if req.ModelID == "" {
			return types.Error(req.RequestID, "model_id is required")
		}
		info, loaded, err := s.svc.ModelStatus(req.ModelID)
		if err != nil {
			return types.Error(req.RequestID, err.Error())
		}
		resp := types.Success(req.RequestID)
		resp.ModelInfo = &info
		resp.IsLoaded = &loaded
		resp.LastUsed = info.LastUsed
		return resp

	case types.ActionGetAllModels:
		models, usage := s.svc.AllModels()
		resp := types.Success(req.RequestID)
		resp.Models = models
		resp.VRAMUsage = &usage
		return resp

	case types.ActionSelectModel:
		info, err := s.svc.SelectModel(ctx, req.TaskType, req.ContextSize)
		if err != nil {
			return types.Error(req.RequestID, err.Error())
		}
		usage := s.svc.Usage()
		resp := types.Success(req.RequestID)
		resp.SelectedModel = info.ID
		resp.ModelInfo = &info
		resp.VRAMUsage = &usage
		return resp

	case types.ActionHealthCheck:
		models, usage := s.svc.AllModels()
		resp := types.Success(req.RequestID)
		resp.Message = "ok"
		resp.Models = models
		resp.VRAMUsage = &usage
		return resp

	case "":
		return types.Error(req.RequestID, "missing request_type")
	default:
		return types.Error(req.RequestID, "unknown action: "+kind)
	}
}
