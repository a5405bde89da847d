package handlers

import (
	"log"
	"strings"
	"time"

	"agenticdebugger/internal/models"
	"agenticdebugger/internal/services"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	wsReadTimeout  = 90 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsQueueDepth   = 64
)

// StreamHandler pushes state changes to WebSocket subscribers. The socket is
// push-only: the only client message understood is the literal "ping".
type StreamHandler struct {
	connections *services.ConnectionManager
	cache       *services.SnapshotCache
	metrics     *services.Metrics
}

// NewStreamHandler creates a stream handler. metrics may be nil.
func NewStreamHandler(connections *services.ConnectionManager, cache *services.SnapshotCache, metrics *services.Metrics) *StreamHandler {
	return &StreamHandler{
		connections: connections,
		cache:       cache,
		metrics:     metrics,
	}
}

// Upgrade rejects non-WebSocket requests to the stream path
func (h *StreamHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("client_ip", c.IP())
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Handle runs one subscriber connection until either side closes it
func (h *StreamHandler) Handle(c *websocket.Conn) {
	conn := models.NewStreamConnection(uuid.New().String(), c, wsQueueDepth)
	if ip, ok := c.Locals("client_ip").(string); ok {
		conn.ClientIP = ip
	}

	h.connections.Add(conn)
	defer h.connections.Release(conn.ConnID)
	log.Printf("🔌 [WS] Subscriber %s connected from %s (%d active)", conn.ConnID, conn.ClientIP, h.connections.Count())

	snap := h.cache.Get()
	h.send(conn, models.StreamMessage{
		Type:         models.StreamConnected,
		ConnectionID: conn.ConnID,
		Message:      "connected to agentic debugger bridge",
		Snapshot:     &snap,
		Timestamp:    time.Now().UTC(),
	})

	written := make(chan struct{})
	go h.writeLoop(conn, written)

	stopPing := make(chan struct{})
	go h.pingLoop(conn, stopPing)

	h.readLoop(conn)

	close(stopPing)
	h.connections.Remove(conn.ConnID)
	<-written
	log.Printf("🔌 [WS] Subscriber %s disconnected", conn.ConnID)
}

func (h *StreamHandler) readLoop(conn *models.StreamConnection) {
	c := conn.Conn
	c.SetReadDeadline(time.Now().Add(wsReadTimeout))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	for {
		msgType, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("⚠️  [WS] Subscriber %s read error: %v", conn.ConnID, err)
			}
			return
		}
		c.SetReadDeadline(time.Now().Add(wsReadTimeout))

		if msgType != websocket.TextMessage {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(string(data)), "ping") {
			h.record("ignored", "inbound")
			continue
		}
		h.record("ping", "inbound")
		h.send(conn, models.StreamMessage{Type: models.StreamPong, Timestamp: time.Now().UTC()})
	}
}

// writeLoop is the only writer of data frames. It exits when the outbound
// queue is closed, then closes the socket so the read loop unblocks.
func (h *StreamHandler) writeLoop(conn *models.StreamConnection, done chan<- struct{}) {
	defer close(done)
	defer func() {
		conn.WriteMu.Lock()
		_ = conn.Conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Conn.Close()
		conn.WriteMu.Unlock()
	}()

	for msg := range conn.Outbound() {
		conn.WriteMu.Lock()
		conn.Conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		err := conn.Conn.WriteJSON(msg)
		conn.WriteMu.Unlock()
		if err != nil {
			log.Printf("⚠️  [WS] Write to subscriber %s failed: %v", conn.ConnID, err)
			h.connections.Remove(conn.ConnID)
			for range conn.Outbound() {
			}
			return
		}
	}
}

func (h *StreamHandler) pingLoop(conn *models.StreamConnection, stop <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if conn.IsClosed() {
				return
			}
			if err := conn.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}

func (h *StreamHandler) send(conn *models.StreamConnection, msg models.StreamMessage) {
	if conn.SafeSend(msg) {
		h.record(msg.Type, "outbound")
	}
}

func (h *StreamHandler) record(msgType, direction string) {
	if h.metrics != nil {
		h.metrics.RecordWebSocketMessage(msgType, direction)
	}
}
