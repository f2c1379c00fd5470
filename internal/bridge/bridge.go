// Package bridge implements the dispatch gateway over a self-hosted
// WhatsApp bridge (whatsapp-web.js based) reached via WebSocket. The bridge
// speaks the actual WhatsApp protocol; this client just exchanges JSON
// frames and correlates acks by request id.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sendloop/sendloop/internal/dispatch"
	"github.com/sendloop/sendloop/internal/store"
)

const (
	handshakeTimeout = 10 * time.Second
	ackTimeout       = 30 * time.Second
	maxReconnectWait = 30 * time.Second
)

// Gateway connects to a bridge via WebSocket and implements
// dispatch.Gateway. Safe for concurrent use; writes are serialized.
type Gateway struct {
	url    string
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan ackFrame
}

type sendFrame struct {
	Type    string         `json:"type"` // "send"
	ID      string         `json:"id"`
	To      string         `json:"to"`
	Kind    string         `json:"kind"`
	Payload map[string]any `json:"payload"`
}

type ackFrame struct {
	Type      string `json:"type"` // "ack"
	ID        string `json:"id"`
	MessageID string `json:"message_id"`
	Error     string `json:"error,omitempty"`
}

// New creates a bridge gateway and starts its read/reconnect loop.
func New(ctx context.Context, bridgeURL string) (*Gateway, error) {
	if bridgeURL == "" {
		return nil, fmt.Errorf("bridge url is required")
	}
	gctx, cancel := context.WithCancel(ctx)
	g := &Gateway{
		url:     bridgeURL,
		ctx:     gctx,
		cancel:  cancel,
		pending: make(map[string]chan ackFrame),
	}
	if err := g.connect(); err != nil {
		// Reconnect loop keeps trying; first sends may fail meanwhile.
		slog.Warn("initial bridge connection failed, will retry", "error", err)
	}
	go g.listenLoop()
	return g, nil
}

// Close shuts the gateway down.
func (g *Gateway) Close() error {
	g.cancel()
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn != nil {
		_ = g.conn.Close()
		g.conn = nil
	}
	return nil
}

// Send writes one frame to the bridge and waits for its ack.
func (g *Gateway) Send(ctx context.Context, _ dispatch.AccountCreds, p dispatch.Payload) (string, error) {
	id := uuid.Must(uuid.NewV7()).String()
	frame := sendFrame{
		Type: "send",
		ID:   id,
		To:   p.To,
		Kind: p.Kind,
		Payload: map[string]any{
			"text":      p.Text,
			"media_url": p.MediaURL,
			"caption":   p.Caption,
			"latitude":  p.Latitude,
			"longitude": p.Longitude,
			"reply_to":  p.ReplyTo,
		},
	}
	if p.Kind == store.KindTemplate && p.Template != nil {
		// The bridge has no server-side templates; send the rendered text.
		frame.Kind = store.KindText
		frame.Payload["text"] = p.Template.Body
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return "", fmt.Errorf("marshal bridge frame: %w", err)
	}

	ackCh := make(chan ackFrame, 1)

	g.mu.Lock()
	conn := g.conn
	if conn == nil {
		g.mu.Unlock()
		return "", fmt.Errorf("bridge not connected")
	}
	g.pending[id] = ackCh
	err = conn.WriteMessage(websocket.TextMessage, data)
	g.mu.Unlock()

	if err != nil {
		g.dropPending(id)
		return "", fmt.Errorf("write bridge frame: %w", err)
	}

	select {
	case <-ctx.Done():
		g.dropPending(id)
		return "", ctx.Err()
	case <-time.After(ackTimeout):
		g.dropPending(id)
		return "", fmt.Errorf("bridge ack timeout for %s", p.To)
	case ack := <-ackCh:
		if ack.Error != "" {
			return "", fmt.Errorf("bridge rejected send: %s", ack.Error)
		}
		if ack.MessageID == "" {
			return "", fmt.Errorf("bridge ack has no message id")
		}
		return ack.MessageID, nil
	}
}

func (g *Gateway) dropPending(id string) {
	g.mu.Lock()
	delete(g.pending, id)
	g.mu.Unlock()
}

func (g *Gateway) connect() error {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = handshakeTimeout

	conn, _, err := dialer.Dial(g.url, nil)
	if err != nil {
		return fmt.Errorf("dial bridge %s: %w", g.url, err)
	}

	g.mu.Lock()
	g.conn = conn
	g.mu.Unlock()

	slog.Info("bridge connected", "url", g.url)
	return nil
}

// listenLoop reads ack frames with automatic reconnection.
func (g *Gateway) listenLoop() {
	backoff := time.Second

	for {
		select {
		case <-g.ctx.Done():
			return
		default:
		}

		g.mu.Lock()
		conn := g.conn
		g.mu.Unlock()

		if conn == nil {
			select {
			case <-g.ctx.Done():
				return
			case <-time.After(backoff):
			}
			if err := g.connect(); err != nil {
				slog.Warn("bridge reconnect failed", "error", err)
				backoff = min(backoff*2, maxReconnectWait)
				continue
			}
			backoff = time.Second
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			slog.Warn("bridge read error, will reconnect", "error", err)
			g.mu.Lock()
			if g.conn != nil {
				_ = g.conn.Close()
				g.conn = nil
			}
			// In-flight sends will time out; their acks are gone.
			g.mu.Unlock()
			continue
		}

		var ack ackFrame
		if err := json.Unmarshal(message, &ack); err != nil {
			slog.Warn("invalid bridge frame", "error", err)
			continue
		}
		if ack.Type != "ack" || ack.ID == "" {
			continue
		}

		g.mu.Lock()
		ch, ok := g.pending[ack.ID]
		if ok {
			delete(g.pending, ack.ID)
		}
		g.mu.Unlock()
		if ok {
			ch <- ack
		}
	}
}

var _ dispatch.Gateway = (*Gateway)(nil)
