package remotesrv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/marcus/yoga/internal/remote"
)

// Server serves the node tree over the Realtime Database REST protocol.
type Server struct {
	config Config
	http   *http.Server
	store  *NodeStore
	keys   *remote.KeyGenerator
	addr   string
}

// NewServer creates a Server with the given config and store.
func NewServer(cfg Config, store *NodeStore) *Server {
	s := &Server{
		config: cfg,
		store:  store,
		keys:   remote.NewKeyGenerator(),
	}
	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Start begins listening for HTTP requests (non-blocking).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.addr = ln.Addr().String()

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("http server", "err", err)
		}
	}()
	return nil
}

// Addr returns the bound listen address once Start has returned.
func (s *Server) Addr() string {
	return s.addr
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler builds the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("GET /{collection}", s.handleGetCollection)
	mux.HandleFunc("POST /{collection}", s.handlePush)
	mux.HandleFunc("GET /{collection}/{key}", s.handleGetNode)
	mux.HandleFunc("PUT /{collection}/{key}", s.handlePut)
	mux.HandleFunc("PATCH /{collection}/{key}", s.handlePatch)
	mux.HandleFunc("DELETE /{collection}/{key}", s.handleDelete)

	return chain(mux, recoveryMiddleware, requestIDMiddleware, loggerMiddleware, loggingMiddleware,
		authMiddleware(s.config.AuthToken), maxBytesMiddleware(s.config.MaxBodyBytes))
}

// handleHealth returns a health check response, pinging the node DB.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "detail": "db unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// pathSegment strips the .json suffix the REST protocol puts on the last segment
func pathSegment(r *http.Request, name string, last bool) (string, bool) {
	v := r.PathValue(name)
	if last {
		var ok bool
		if v, ok = strings.CutSuffix(v, ".json"); !ok {
			return "", false
		}
	}
	return v, v != ""
}

func (s *Server) collection(w http.ResponseWriter, r *http.Request, last bool) (string, bool) {
	c, ok := pathSegment(r, "collection", last)
	if !ok {
		writeError(w, http.StatusNotFound, "path must end in .json")
		return "", false
	}
	if !remote.ValidCollection(c) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown collection %q", c))
		return "", false
	}
	return c, true
}

func (s *Server) node(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	c, ok := s.collection(w, r, false)
	if !ok {
		return "", "", false
	}
	key, ok := pathSegment(r, "key", true)
	if !ok {
		writeError(w, http.StatusNotFound, "path must end in .json")
		return "", "", false
	}
	if err := remote.ValidKey(key); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", "", false
	}
	return c, key, true
}

func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	c, ok := s.collection(w, r, true)
	if !ok {
		return
	}
	nodes, err := s.store.List(c)
	if err != nil {
		logFor(r.Context()).Error("list collection", "collection", c, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if len(nodes) == 0 {
		writeRaw(w, http.StatusOK, json.RawMessage("null"))
		return
	}
	if r.URL.Query().Get("shallow") == "true" {
		keys := make(map[string]bool, len(nodes))
		for k := range nodes {
			keys[k] = true
		}
		writeJSON(w, http.StatusOK, keys)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

// handlePush stores the body under a freshly generated key and returns {"name": key}
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	c, ok := s.collection(w, r, true)
	if !ok {
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	key := s.keys.Next()
	if err := s.store.Put(c, key, body); err != nil {
		logFor(r.Context()).Error("push node", "collection", c, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": key})
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	c, key, ok := s.node(w, r)
	if !ok {
		return
	}
	payload, found, err := s.store.Get(c, key)
	if err != nil {
		logFor(r.Context()).Error("get node", "collection", c, "key", key, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !found {
		writeRaw(w, http.StatusOK, json.RawMessage("null"))
		return
	}
	writeRaw(w, http.StatusOK, payload)
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	c, key, ok := s.node(w, r)
	if !ok {
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	if err := s.store.Put(c, key, body); err != nil {
		logFor(r.Context()).Error("put node", "collection", c, "key", key, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeRaw(w, http.StatusOK, body)
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	c, key, ok := s.node(w, r)
	if !ok {
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		writeError(w, http.StatusBadRequest, "PATCH body must be a JSON object")
		return
	}
	merged, err := s.store.Patch(c, key, fields)
	if err != nil {
		logFor(r.Context()).Error("patch node", "collection", c, "key", key, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeRaw(w, http.StatusOK, merged)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	c, key, ok := s.node(w, r)
	if !ok {
		return
	}
	if err := s.store.Delete(c, key); err != nil {
		logFor(r.Context()).Error("delete node", "collection", c, "key", key, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeRaw(w, http.StatusOK, json.RawMessage("null"))
}

func readBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "read body")
		return nil, false
	}
	if !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "Invalid data; couldn't parse JSON object")
		return nil, false
	}
	return body, true
}
