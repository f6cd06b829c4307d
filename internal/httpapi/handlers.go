package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Daovouslabs/wsgateway-go/internal/gateway"
	"github.com/Daovouslabs/wsgateway-go/internal/registry"
	"github.com/Daovouslabs/wsgateway-go/internal/wstransport"
)

const serviceName = "wsgateway"

// Handlers implements the HTTP endpoints.
type Handlers struct {
	bridge   *gateway.Bridge
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandlers creates the endpoint handlers around a bridge.
func NewHandlers(bridge *gateway.Bridge, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		bridge: bridge,
		logger: logger.With("component", "httpapi"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Info serves service metadata on the root path.
func (h *Handlers) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": serviceName,
		"channel": h.bridge.Channel(),
		"state":   h.bridge.State().String(),
	})
}

// Health serves the liveness probe.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	state := h.bridge.State()
	status := http.StatusOK
	if state != gateway.StateActive {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"state":       state.String(),
		"connections": h.bridge.ConnectionCount(),
	})
}

// WebSocket upgrades the request and runs the connection's read loop
// until the peer disconnects or the gateway shuts down.
//
// Query parameters: "id" is the connection id (defaults to a random one,
// or to the authenticated client id), "topic" is the optional
// subscription pattern. A connection without a topic receives only
// broadcasts.
func (h *Handlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	connID := r.URL.Query().Get("id")
	if connID == "" {
		if clientID, ok := r.Context().Value(ClientIDKey).(string); ok && clientID != "" {
			connID = clientID
		} else {
			connID = uuid.NewString()
		}
	}
	pattern := r.URL.Query().Get("topic")

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.logger.Warn("websocket upgrade failed", "conn_id", connID, "error", err)
		return
	}

	transport := wstransport.New(ws)
	conn, err := h.bridge.NewConnection(r.Context(), transport, connID, pattern)
	if err != nil {
		h.logger.Warn("connection rejected", "conn_id", connID, "error", err)
		code := gateway.CloseNormal
		if errors.Is(err, gateway.ErrShuttingDown) {
			code = gateway.CloseServiceRestart
		}
		_ = transport.Close(code)
		return
	}

	h.logger.Info("client connected", "conn_id", connID, "pattern", pattern)
	h.readLoop(r, transport, conn)
}

// readLoop pumps client messages into the broker until the session ends.
func (h *Handlers) readLoop(r *http.Request, transport *wstransport.Conn, conn *registry.Connection) {
	for {
		data, err := transport.Receive(r.Context())
		if err != nil {
			// The transport is already gone, so removal must skip the
			// closing handshake. During shutdown the bridge may have
			// removed the connection first; that race is benign.
			if removeErr := h.bridge.RawRemoveConnection(conn); removeErr != nil &&
				!errors.Is(removeErr, registry.ErrNotRegistered) {
				h.logger.Warn("removing connection", "conn_id", conn.ID(), "error", removeErr)
			}
			if !errors.Is(err, wstransport.ErrPeerGone) {
				h.logger.Warn("client read failed", "conn_id", conn.ID(), "error", err)
			} else {
				h.logger.Info("client disconnected", "conn_id", conn.ID())
			}
			return
		}

		if err := h.handleClientMessage(r, data); err != nil {
			h.logger.Warn("dropping client message", "conn_id", conn.ID(), "error", err)
		}
	}
}

// handleClientMessage tags one client payload and publishes it to the
// broker channel. The optional "topic" field routes a directed send;
// without it the message is a broadcast.
func (h *Handlers) handleClientMessage(r *http.Request, data []byte) error {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return errors.New("payload is not a JSON object")
	}

	topic, _ := payload["topic"].(string)
	delete(payload, "topic")

	return h.bridge.PublishTagged(r.Context(), payload, topic)
}
