// Package filetransfer is the local file-transfer service (§4.6):
// an HTTPS endpoint child devices and plugins use to upload and
// download files named by a transfer id, so large payloads (firmware
// images, log archives, software binaries) never need to round-trip
// through MQTT. TLS is mandatory; a configured CA directory turns on
// mutual TLS so only enrolled child devices may connect.
package filetransfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/thin-edge/tedge-core/internal/store"
)

const basePath = "/tedge/file-transfer/"

// Config configures the file-transfer server.
type Config struct {
	Addr    string
	DataDir string
	TLS     TLSOptions

	// MaxBodyBytes bounds the size of an uploaded file. Zero uses
	// DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// DefaultMaxBodyBytes bounds an individual upload absent an explicit
// Config.MaxBodyBytes.
const DefaultMaxBodyBytes = 512 * 1024 * 1024

// Server serves GET/PUT/DELETE on /tedge/file-transfer/<id> backed by
// plain files under DataDir.
type Server struct {
	cfg    Config
	logger *slog.Logger
	http   *http.Server
}

// New builds a Server from cfg. The TLS config is constructed once
// here, not per connection.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	tlsCfg, err := BuildTLSConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	s := &Server{cfg: cfg, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc(basePath, s.handle)

	s.http = &http.Server{
		Addr:      cfg.Addr,
		Handler:   mux,
		TLSConfig: tlsCfg,
	}
	return s, nil
}

// Name identifies this actor for the runtime supervisor.
func (s *Server) Name() string { return "file-transfer-server" }

// Run serves until ctx is cancelled, then shuts down gracefully
// within a bounded window.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServeTLS("", "")
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, basePath)
	if id == "" || strings.Contains(id, "..") {
		http.Error(w, "invalid transfer id", http.StatusBadRequest)
		return
	}
	path, ok := s.resolvePath(id)
	if !ok {
		http.Error(w, "invalid transfer id", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodPut:
		s.handlePut(w, r, path)
	case http.MethodGet, http.MethodHead:
		s.handleGet(w, r, path)
	case http.MethodDelete:
		s.handleDelete(w, path)
	default:
		w.Header().Set("Allow", "GET, HEAD, PUT, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// resolvePath confines id to cfg.DataDir, rejecting any path that
// would escape it after cleaning.
func (s *Server) resolvePath(id string) (string, bool) {
	clean := filepath.Clean("/" + id)
	full := filepath.Join(s.cfg.DataDir, clean)
	if !strings.HasPrefix(full, filepath.Clean(s.cfg.DataDir)+string(filepath.Separator)) {
		return "", false
	}
	return full, true
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request, path string) {
	limited := io.LimitReader(r.Body, s.cfg.MaxBodyBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		http.Error(w, "reading request body", http.StatusBadGateway)
		return
	}
	if int64(len(data)) > s.cfg.MaxBodyBytes {
		http.Error(w, "file exceeds maximum upload size", http.StatusRequestEntityTooLarge)
		return
	}
	if err := store.WriteFileAtomic(path, data, 0644); err != nil {
		s.logf("write %s: %v", path, err)
		http.Error(w, "storing file failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, path string) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "opening file failed", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, "stat failed", http.StatusInternalServerError)
		return
	}
	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), f)
}

func (s *Server) handleDelete(w http.ResponseWriter, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		http.Error(w, "delete failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Warn(fmt.Sprintf(format, args...))
}
