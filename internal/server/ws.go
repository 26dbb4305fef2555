package server

import (
	"copin/internal/debounce"
	"copin/internal/session"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 5 * time.Second
	wsPingPeriod = 20 * time.Second
)

// checkOrigin accepts requests without an Origin header, same-origin requests and
// the configured allow-list.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	_, ok := s.origins[strings.ToLower(strings.TrimRight(origin, "/"))]
	return ok
}

// latestState holds the newest snapshot waiting to be written. Older unsent
// snapshots are overwritten.
type latestState struct {
	mu     sync.Mutex
	state  session.State
	notify chan struct{}
}

func (l *latestState) set(s session.State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

func (l *latestState) get() session.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// stream pushes the session state on connect and after every change, debounced.
func (s *Server) stream(c *gin.Context) {
	e, ok := s.lookupSession(c)
	if !ok {
		return
	}
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("ws upgrade", zap.Error(err))
		return
	}
	defer conn.Close()
	log := s.log.With(zap.String("session", e.store.ID))

	latest := &latestState{notify: make(chan struct{}, 1)}
	debouncer := debounce.New(s.debounce)
	defer debouncer.Stop()
	unsubscribe := e.store.Subscribe(func(st session.State) {
		debouncer.Trigger(func() { latest.set(st) })
	})
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(st session.State) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(st)
	}
	if err := write(e.store.State()); err != nil {
		log.Debug("ws write", zap.Error(err))
		return
	}

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-latest.notify:
			if err := write(latest.get()); err != nil {
				log.Debug("ws write", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-done:
			return
		case <-s.ctx.Done():
			return
		}
	}
}
