package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"codeberg.org/nexustouch/perfd/internal/errors"
	"codeberg.org/nexustouch/perfd/internal/logger"
	"codeberg.org/nexustouch/perfd/internal/perf"
	"codeberg.org/nexustouch/perfd/internal/session"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const (
	writeWait       = 5 * time.Second
	maxEventSize    = 4096
	shutdownTimeout = 5 * time.Second
)

// Server exposes sessions over websockets next to health and metrics
// endpoints.
type Server struct {
	addr     string
	hub      *Hub
	gatherer prometheus.Gatherer
	metrics  *Metrics
	log      logger.Logger
	upgrader websocket.Upgrader
}

func New(addr string, hub *Hub, gatherer prometheus.Gatherer, metrics *Metrics, log logger.Logger) *Server {
	return &Server{
		addr:     addr,
		hub:      hub,
		gatherer: gatherer,
		metrics:  metrics,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/session", s.handleSession)
	mux.HandleFunc("GET /v1/observe", s.handleObserve)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errFactory := errors.New()

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errFactory.Wrap(errors.ErrListen, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info().Str("addr", ln.Addr().String()).Msg("Listening")
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			return errFactory.Wrap(errors.ErrListen, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errFactory.Wrap(errors.ErrShutdownFailed, err)
		}
		return nil
	})

	return g.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": s.hub.Len(),
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	initial := s.hub.InitialMode()
	if q := r.URL.Query().Get("mode"); q != "" {
		mode, err := perf.ParseMode(q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		initial = mode
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(errors.New().Wrap(errors.ErrUpgrade, err)).Str("remote", r.RemoteAddr).Msg("Websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxEventSize)

	sess := s.hub.NewSession(initial)
	defer s.hub.Remove(sess.ID())

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sess.Run(gctx)
	})
	g.Go(func() error {
		defer conn.Close()
		for m := range sess.Out() {
			if err := writeJSON(conn, m); err != nil {
				return err
			}
		}
		return writeClose(conn)
	})
	g.Go(func() error {
		defer cancel()
		s.readEvents(gctx, conn, sess)
		return nil
	})

	if err := g.Wait(); err != nil {
		s.log.Debug().Err(err).
			Str("session", sess.ID()).
			Str("error_code", string(errors.CodeOf(err))).
			Msg("Session connection closed with error")
	}
}

func (s *Server) readEvents(ctx context.Context, conn *websocket.Conn, sess *session.Session) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		ev, err := session.ParseEvent(data)
		if err != nil {
			if s.metrics != nil {
				s.metrics.malformed()
			}
			s.log.Debug().Err(err).Str("session", sess.ID()).Msg("Skipping malformed event")
			continue
		}

		if err := sess.Submit(ctx, ev); err != nil {
			return
		}
	}
}

func (s *Server) handleObserve(w http.ResponseWriter, r *http.Request) {
	// Subscribe first so nothing emitted after the handshake is missed.
	msgs, unsubscribe := s.hub.Observe()
	defer unsubscribe()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(errors.New().Wrap(errors.ErrUpgrade, err)).Str("remote", r.RemoteAddr).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Observers only listen; reading detects the peer going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			_ = writeClose(conn)
			conn.Close()
			<-gone
			return
		case <-gone:
			return
		case m := <-msgs:
			if err := writeJSON(conn, m); err != nil {
				conn.Close()
				<-gone
				return
			}
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}

func writeClose(conn *websocket.Conn) error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	return conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
