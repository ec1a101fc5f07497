package handlers

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/darehouse/backend/internal/auth"
	"github.com/darehouse/backend/internal/config"
	"github.com/darehouse/backend/internal/events"
	"github.com/darehouse/backend/internal/ton"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// wsConn is the part of a websocket connection the hub writes to.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
}

// WSHub fans lifecycle and mirror events out to connected clients. Events
// naming an owner go only to that address; the rest go to everyone.
type WSHub struct {
	cfg         *config.Config
	subscriber  events.Subscriber
	log         *zap.Logger
	mu          sync.Mutex
	connections map[string][]wsConn
}

func NewWSHub(cfg *config.Config, subscriber events.Subscriber, log *zap.Logger) *WSHub {
	return &WSHub{
		cfg:         cfg,
		subscriber:  subscriber,
		log:         log,
		connections: make(map[string][]wsConn),
	}
}

func (h *WSHub) Start(ctx context.Context) error {
	for _, stream := range []string{events.StreamBet, events.StreamMirror} {
		if err := h.subscriber.Subscribe(ctx, stream, h.dispatch); err != nil {
			return err
		}
	}
	return nil
}

func (h *WSHub) dispatch(event events.Event) {
	if owner, ok := event.Payload["owner"].(string); ok && owner != "" {
		h.SendToAddress(owner, event)
		return
	}
	h.broadcast(event)
}

func (h *WSHub) broadcast(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, conns := range h.connections {
		for _, conn := range conns {
			_ = conn.WriteMessage(websocket.TextMessage, data)
		}
	}
}

func (h *WSHub) SendToAddress(address string, event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, conn := range h.connections[address] {
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}
}

func (h *WSHub) register(address string, conn wsConn) {
	h.mu.Lock()
	h.connections[address] = append(h.connections[address], conn)
	h.mu.Unlock()
}

func (h *WSHub) unregister(address string, conn wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.connections[address]
	for i, c := range conns {
		if c == conn {
			h.connections[address] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(h.connections[address]) == 0 {
		delete(h.connections, address)
	}
}

// WSUpgradeMiddleware checks for websocket upgrade
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

func (h *WSHub) HandleWS(conn *websocket.Conn) {
	tokenStr := conn.Query("token")
	if tokenStr == "" {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"missing token"}`))
		conn.Close()
		return
	}

	claims, err := auth.ParseJWT(h.cfg.JWTSecret, tokenStr)
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid token"}`))
		conn.Close()
		return
	}
	address, err := ton.NormalizeAddress(claims.Address)
	if err != nil || address == "" {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid token"}`))
		conn.Close()
		return
	}

	h.register(address, conn)
	defer func() {
		h.unregister(address, conn)
		conn.Close()
	}()

	// Read loop (keep alive / pings)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
