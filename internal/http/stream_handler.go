package httpapi

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	logpkg "greenlife-monitor/common/logger"
	"greenlife-monitor/internal/alert"
	"greenlife-monitor/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	commandTimeout = 15 * time.Second
)

// client -> server
type clientMessage struct {
	Type  string `json:"type"` // auth | signout | set_fan
	Token string `json:"token,omitempty"`
	On    *bool  `json:"on,omitempty"`
}

// server -> client
type serverMessage struct {
	Type      string       `json:"type"` // hello | view | notice
	SessionID string       `json:"session_id,omitempty"`
	View      *models.View `json:"view,omitempty"`
	*alert.Notice
}

// StreamHandler serves one dashboard session per WebSocket connection.
type StreamHandler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewStreamHandler accepts browser connections from allowedOrigins only. An
// empty list admits same-host pages; "*" admits any origin.
func NewStreamHandler(hub *Hub, allowedOrigins []string, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.ToLower(strings.TrimRight(o, "/"))] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// not a browser
			return true
		}
		if set["*"] || set[strings.ToLower(origin)] {
			return true
		}
		if len(set) > 0 {
			return false
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sess := h.hub.Open()
	defer h.hub.Remove(sess.ID)

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(serverMessage{Type: "hello", SessionID: sess.ID.String()}); err != nil {
		h.logger.Warn("Failed to greet dashboard client", zap.Error(err))
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(conn, sess)
	}()

	h.readLoop(conn, sess)

	h.hub.Remove(sess.ID)
	<-writerDone
}

func (h *StreamHandler) readLoop(conn *websocket.Conn, sess *Session) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("Dashboard connection lost",
					zap.String("session_id", sess.ID.String()),
					zap.Error(err),
				)
			}
			return
		}

		switch msg.Type {
		case "auth":
			ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
			who, err := sess.Auth.SignIn(ctx, msg.Token)
			if err != nil {
				sess.offerNotice(alert.Notice{Level: "error", Title: "Error", Message: "Sign-in failed"})
			} else {
				logpkg.ForIdentity(logpkg.ForSession(h.logger, sess.ID.String()), who).Info("Dashboard signed in")
			}
			cancel()
		case "signout":
			sess.Auth.SignOut()
		case "set_fan":
			if msg.On == nil {
				sess.offerNotice(alert.Notice{Level: "error", Title: "Error", Message: "Missing fan state"})
				continue
			}
			desired := *msg.On
			// resolves asynchronously so the read loop keeps serving
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
				defer cancel()
				_ = sess.ToggleFan(ctx, desired)
			}()
		default:
			h.logger.Debug("Ignoring dashboard message", zap.String("type", msg.Type))
		}
	}
}

func (h *StreamHandler) writeLoop(conn *websocket.Conn, sess *Session) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	write := func(msg serverMessage) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			h.logger.Debug("Dashboard write failed", zap.Error(err))
			return false
		}
		return true
	}

	for {
		select {
		case <-sess.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case v := <-sess.Views():
			if !write(serverMessage{Type: "view", View: &v}) {
				conn.Close()
				return
			}
		case n := <-sess.Notices():
			if !write(serverMessage{Type: "notice", Notice: &n}) {
				conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}
