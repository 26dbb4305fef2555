// Package server exposes backtest sessions and batches over HTTP and websocket.
package server

import (
	"context"
	"copin/internal/engine"
	"copin/internal/session"
	"copin/types"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// Repository is the optional persistence the server uses for share records and
// last-used settings.
type Repository interface {
	GetLastSettings(ctx context.Context, owner string, protocol types.Protocol) (*types.RequestBackTestData, error)
	SaveShare(ctx context.Context, id string, protocol types.Protocol, query types.ShareQuery) error
	GetShare(ctx context.Context, id string) (types.Protocol, *types.ShareQuery, error)
}

type Options struct {
	// Debounce coalesces websocket state pushes. Zero pushes every change.
	Debounce   time.Duration
	Repository Repository
	Now        func() time.Time
	// AllowedOrigins are websocket origins accepted besides the server's own host.
	AllowedOrigins []string
}

type sessionEntry struct {
	store    *session.Store
	protocol types.Protocol
	auto     *engine.AutoSubmitter
}

type batchEntry struct {
	batch    *engine.Batch
	protocol types.Protocol
}

type Server struct {
	engine   *engine.Engine
	sessions *session.Registry
	repo     Repository
	debounce time.Duration
	now      func() time.Time
	log      *zap.Logger
	router   *gin.Engine
	upgrader websocket.Upgrader
	origins  map[string]struct{}

	// ctx outlives requests and bounds background auto-submissions.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	entries map[string]*sessionEntry
	batches map[string]*batchEntry
}

func New(eng *engine.Engine, opts Options, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		engine:   eng,
		sessions: session.NewRegistry(),
		repo:     opts.Repository,
		debounce: opts.Debounce,
		now:      opts.Now,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		entries:  make(map[string]*sessionEntry),
		batches:  make(map[string]*batchEntry),
		origins:  make(map[string]struct{}, len(opts.AllowedOrigins)),
	}
	for _, o := range opts.AllowedOrigins {
		s.origins[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string, readTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: readTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	return err
}

// Close cancels in-flight background submissions.
func (s *Server) Close() {
	s.cancel()
}

func (s *Server) session(id string) (*sessionEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

func (s *Server) addSession(e *sessionEntry) {
	s.mu.Lock()
	s.entries[e.store.ID] = e
	s.mu.Unlock()
}

func (s *Server) removeSession(id string) bool {
	s.mu.Lock()
	_, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()
	s.sessions.Delete(id)
	return ok
}

func (s *Server) batch(id string) (*batchEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[id]
	return b, ok
}

func (s *Server) addBatch(b *batchEntry) {
	s.mu.Lock()
	s.batches[b.batch.ID] = b
	s.mu.Unlock()
}

// owner identifies the caller from the Authorization header. Empty means anonymous.
func owner(c *gin.Context) string {
	h := strings.TrimSpace(c.GetHeader("Authorization"))
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}
