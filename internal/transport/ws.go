package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/krasnov-dev/voicepipe/internal/hub"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
)

type LiveHub interface {
	Register(userID uint64, conn hub.Conn)
	Unregister(conn hub.Conn)
	Broadcast(payload []byte)
	Online() int
}

type liveHandler struct {
	hub      LiveHub
	upgrader websocket.Upgrader
}

func NewLiveHandler(h LiveHub) *liveHandler {
	return &liveHandler{
		hub: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// userId is trusted input here, the gateway in front owns auth.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// wsConn narrows *websocket.Conn to what the hub needs and pins the write
// deadline so one stuck peer cannot wedge its writer goroutine forever.
type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) WriteMessage(payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *wsConn) Close() error { return c.ws.Close() }

func (h *liveHandler) live(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/live/")
	userID, err := strconv.ParseUint(rest, 10, 64)
	if err != nil || userID == 0 {
		writeError(w, http.StatusBadRequest, "missing or invalid user ID")
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		slog.Warn("websocket upgrade failed",
			slog.Uint64("user_id", userID),
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}

	conn := &wsConn{ws: ws}
	h.hub.Register(userID, conn)
	slog.Info("live connection opened",
		slog.Uint64("user_id", userID),
		slog.String("remote_addr", r.RemoteAddr),
		slog.Int("online", h.hub.Online()),
	)

	defer func() {
		h.hub.Unregister(conn)
		slog.Info("live connection closed",
			slog.Uint64("user_id", userID),
			slog.Int("online", h.hub.Online()),
		)
	}()

	ws.SetReadLimit(512)
	_ = ws.SetReadDeadline(time.Now().Add(wsPongTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	// Clients only listen; the read loop exists to notice the close frame
	// and to service pings.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("live connection read error",
					slog.Uint64("user_id", userID),
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}
}

func (h *liveHandler) online(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"online": h.hub.Online()})
}

// broadcast pushes an operational announcement to every live connection.
func (h *liveHandler) broadcast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "")
		return
	}

	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Message == "" {
		writeError(w, http.StatusBadRequest, "field `message` is required")
		return
	}

	payload, err := json.Marshal(map[string]string{"message": body.Message})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "")
		return
	}

	h.hub.Broadcast(payload)
	writeJSON(w, http.StatusOK, map[string]int{"online": h.hub.Online()})
}
