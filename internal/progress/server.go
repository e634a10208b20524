package progress

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsClient adapts one upgraded connection to the Client interface,
// the same "small Send closure" shape internal/api/ws.go uses for its
// reactive.Client.
type wsClient struct {
	conn *websocket.Conn
}

func (c *wsClient) Send(evt Event) error {
	return c.conn.WriteJSON(evt)
}

// Handler upgrades connections and subscribes them to a run's Events
// until the client disconnects or unsubscribes.
type Handler struct {
	Registry *Registry
	Log      *zap.Logger
}

func NewHandler(reg *Registry) *Handler {
	return &Handler{Registry: reg, Log: zap.L()}
}

// HandleWS mirrors internal/api/ws.go's HandleWS: upgrade, then loop
// reading subscribe/unsubscribe control messages keyed by run ID.
func (h *Handler) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn("progress: upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	cl := &wsClient{conn: conn}
	subscribed := map[string]struct{}{}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var req struct {
			Type  string `json:"type"`
			RunID string `json:"runId"`
		}
		if err := json.Unmarshal(msg, &req); err != nil {
			conn.WriteJSON(map[string]string{"type": "error", "error": "invalid JSON"})
			continue
		}

		switch strings.ToLower(req.Type) {
		case "subscribe":
			if req.RunID == "" {
				conn.WriteJSON(map[string]string{"type": "error", "error": "missing runId"})
				continue
			}
			h.Registry.Subscribe(req.RunID, cl)
			subscribed[req.RunID] = struct{}{}
			conn.WriteJSON(map[string]string{"type": "subscribed", "runId": req.RunID})
		case "unsubscribe":
			if req.RunID != "" {
				h.Registry.Unsubscribe(req.RunID, cl)
				delete(subscribed, req.RunID)
			}
		default:
			conn.WriteJSON(map[string]string{"type": "error", "error": "unknown message type"})
		}
	}

	for runID := range subscribed {
		h.Registry.Unsubscribe(runID, cl)
	}
}

// NewRunID generates an opaque identifier a caller can hand to both
// NewReporter and a client's "subscribe" message before a diff starts.
func NewRunID() string {
	return uuid.NewString()
}
