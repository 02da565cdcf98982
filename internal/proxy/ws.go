package proxy

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/nulpointcorp/adaptivemock/internal/logring"
	"github.com/nulpointcorp/adaptivemock/internal/metrics"
)

// WSServer serves the live dashboard feed over a websocket. It runs on its
// own net/http listener: gorilla/websocket upgrades require the standard
// library's http.ResponseWriter/Request, which fasthttp's RequestCtx does
// not implement, so the feed cannot share the main fasthttp server.
type WSServer struct {
	broadcast *logring.Broadcaster
	metrics   *metrics.Registry
	log       *slog.Logger
	upgrader  websocket.Upgrader
	srv       *http.Server
}

// NewWSServer creates a WSServer bound to addr (e.g. ":8081").
func NewWSServer(addr string, broadcast *logring.Broadcaster, met *metrics.Registry, log *slog.Logger) *WSServer {
	if log == nil {
		log = slog.Default()
	}
	w := &WSServer{
		broadcast: broadcast,
		metrics:   met,
		log:       log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Dashboard feed is read-only telemetry, not a CSRF-sensitive
			// surface; allow any origin to connect.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", w.handleUpgrade)
	w.srv = &http.Server{Addr: addr, Handler: mux}
	return w
}

// ListenAndServe blocks serving the websocket endpoint until the server is
// shut down. Matches the http.Server.ListenAndServe contract: returns
// http.ErrServerClosed on a clean Shutdown/Close.
func (w *WSServer) ListenAndServe() error {
	return w.srv.ListenAndServe()
}

// Shutdown gracefully stops the websocket server.
func (w *WSServer) Shutdown(ctx context.Context) error {
	return w.srv.Shutdown(ctx)
}

func (w *WSServer) handleUpgrade(rw http.ResponseWriter, r *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.log.WarnContext(r.Context(), "ws_upgrade_failed", slog.String("error", err.Error()))
		return
	}

	if err := w.broadcast.Subscribe(conn); err != nil {
		conn.Close()
		return
	}
	if w.metrics != nil {
		w.metrics.SetBroadcasterSubscribers(w.broadcast.Count())
	}

	defer func() {
		w.broadcast.Unsubscribe(conn)
		conn.Close()
		if w.metrics != nil {
			w.metrics.SetBroadcasterSubscribers(w.broadcast.Count())
		}
	}()

	// The dashboard feed is push-only; the read loop exists solely to
	// detect disconnects and respond to control frames (ping/close), per
	// gorilla/websocket's documented requirement that every connection
	// have an active reader.
	conn.SetReadLimit(512)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !isExpectedCloseError(err) {
				w.log.DebugContext(context.Background(), "ws_read_closed", slog.String("error", err.Error()))
			}
			return
		}
	}
}

func isExpectedCloseError(err error) bool {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return true
	}
	return errors.Is(err, net.ErrClosed)
}
