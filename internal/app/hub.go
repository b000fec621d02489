package app

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Conn is a live subscriber connection. Implemented by the websocket
// wrapper in production and by fakes in tests.
type Conn interface {
	Send(v any) error
	Close() error
}

// Frame types exchanged on the live channel.
type inboundFrame struct {
	Type   string `json:"type"`
	Wallet string `json:"wallet,omitempty"`
}

type outboundFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Wallet    string `json:"wallet,omitempty"`
	Message   string `json:"message,omitempty"`
}

// TradeBroadcast is the frame fanned out to subscribers when a trade
// produces an event.
type TradeBroadcast struct {
	Type   string `json:"type"`
	Wallet string `json:"wallet"`
	Trade  any    `json:"trade"`
	Event  any    `json:"event"`
}

type hubSession struct {
	conn    Conn
	wallets map[string]struct{}
}

// HubStats is a point-in-time view of hub state for the stats surface.
type HubStats struct {
	Sessions  int    `json:"sessions"`
	Wallets   int    `json:"wallets"`
	Published uint64 `json:"published"`
	Delivered uint64 `json:"delivered"`
}

// Hub fans events out to live subscribers. One goroutine (Run) owns the
// session and subscription maps exclusively; every operation is a closure
// executed on that goroutine, so concurrent subscribe/unsubscribe/publish
// are serialized without locks.
type Hub struct {
	logger *zap.Logger

	ops     chan func()
	stopped chan struct{}

	// Owned by the Run goroutine. Never touched from outside it.
	sessions  map[string]*hubSession
	subs      map[string]map[string]struct{}
	published uint64
	delivered uint64
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:   logger,
		ops:      make(chan func()),
		stopped:  make(chan struct{}),
		sessions: make(map[string]*hubSession),
		subs:     make(map[string]map[string]struct{}),
	}
}

// Run processes hub operations until ctx is cancelled. All remaining
// connections are closed on the way out.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)

	for {
		select {
		case <-ctx.Done():
			for id, sess := range h.sessions {
				_ = sess.conn.Close()
				delete(h.sessions, id)
			}
			h.subs = make(map[string]map[string]struct{})
			h.logger.Info("hub stopped")
			return
		case op := <-h.ops:
			op()
		}
	}
}

// do runs fn on the hub goroutine and waits for it to finish. After the
// hub stops, operations become no-ops instead of blocking forever.
func (h *Hub) do(fn func()) {
	done := make(chan struct{})
	select {
	case h.ops <- func() { fn(); close(done) }:
		<-done
	case <-h.stopped:
	}
}

// Connect registers a new session and sends the connected acknowledgment.
// Returns the allocated session id.
func (h *Hub) Connect(conn Conn) string {
	id := uuid.New().String()
	h.do(func() {
		h.sessions[id] = &hubSession{
			conn:    conn,
			wallets: make(map[string]struct{}),
		}
		h.send(id, outboundFrame{Type: "connected", SessionID: id})
		h.logger.Debug("session connected", zap.String("sessionId", shortID(id)))
	})
	return id
}

// Subscribe adds a wallet subscription for a session. Idempotent.
func (h *Hub) Subscribe(sessionID, wallet string) {
	h.do(func() { h.subscribe(sessionID, wallet) })
}

// Unsubscribe removes a wallet subscription for a session. Idempotent.
func (h *Hub) Unsubscribe(sessionID, wallet string) {
	h.do(func() { h.unsubscribe(sessionID, wallet) })
}

// Disconnect removes a session and cascades removal from every wallet's
// subscriber set it belonged to.
func (h *Hub) Disconnect(sessionID string) {
	h.do(func() { h.disconnect(sessionID) })
}

// Publish delivers an event to every session subscribed to the wallet.
// A send failure on one session disconnects that session without
// aborting delivery to the rest. Returns the delivered count.
func (h *Hub) Publish(wallet string, frame TradeBroadcast) int {
	var count int
	h.do(func() {
		h.published++

		var dead []string
		for sessionID := range h.subs[wallet] {
			sess, ok := h.sessions[sessionID]
			if !ok {
				continue
			}
			if err := sess.conn.Send(frame); err != nil {
				h.logger.Warn("send failed, dropping session",
					zap.String("sessionId", shortID(sessionID)),
					zap.Error(err),
				)
				dead = append(dead, sessionID)
				continue
			}
			count++
			h.delivered++
		}
		for _, sessionID := range dead {
			h.disconnect(sessionID)
		}
	})
	return count
}

// HandleFrame processes one inbound client frame for a session.
// Unknown types produce an error frame but do not close the connection.
func (h *Hub) HandleFrame(sessionID string, data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		h.do(func() {
			h.send(sessionID, outboundFrame{Type: "error", Message: "malformed frame"})
		})
		return
	}

	switch frame.Type {
	case "subscribe":
		if frame.Wallet == "" {
			h.do(func() {
				h.send(sessionID, outboundFrame{Type: "error", Message: "wallet required"})
			})
			return
		}
		h.do(func() {
			h.subscribe(sessionID, frame.Wallet)
			h.send(sessionID, outboundFrame{Type: "subscribed", Wallet: frame.Wallet})
		})
	case "unsubscribe":
		if frame.Wallet == "" {
			h.do(func() {
				h.send(sessionID, outboundFrame{Type: "error", Message: "wallet required"})
			})
			return
		}
		h.do(func() {
			h.unsubscribe(sessionID, frame.Wallet)
			h.send(sessionID, outboundFrame{Type: "unsubscribed", Wallet: frame.Wallet})
		})
	case "ping":
		h.do(func() {
			h.send(sessionID, outboundFrame{Type: "pong"})
		})
	default:
		h.do(func() {
			h.send(sessionID, outboundFrame{Type: "error", Message: "unknown frame type: " + frame.Type})
		})
	}
}

// Stats returns a snapshot of hub state.
func (h *Hub) Stats() HubStats {
	var stats HubStats
	h.do(func() {
		stats = HubStats{
			Sessions:  len(h.sessions),
			Wallets:   len(h.subs),
			Published: h.published,
			Delivered: h.delivered,
		}
	})
	return stats
}

// The methods below run only on the hub goroutine.

func (h *Hub) subscribe(sessionID, wallet string) {
	sess, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	sess.wallets[wallet] = struct{}{}
	if h.subs[wallet] == nil {
		h.subs[wallet] = make(map[string]struct{})
	}
	h.subs[wallet][sessionID] = struct{}{}
}

func (h *Hub) unsubscribe(sessionID, wallet string) {
	if sess, ok := h.sessions[sessionID]; ok {
		delete(sess.wallets, wallet)
	}
	if set, ok := h.subs[wallet]; ok {
		delete(set, sessionID)
		// Last subscriber gone: remove the wallet entry so the map
		// never accumulates empty sets.
		if len(set) == 0 {
			delete(h.subs, wallet)
		}
	}
}

func (h *Hub) disconnect(sessionID string) {
	sess, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	for wallet := range sess.wallets {
		h.unsubscribe(sessionID, wallet)
	}
	delete(h.sessions, sessionID)
	_ = sess.conn.Close()
	h.logger.Debug("session disconnected", zap.String("sessionId", shortID(sessionID)))
}

func (h *Hub) send(sessionID string, frame outboundFrame) {
	sess, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	if err := sess.conn.Send(frame); err != nil {
		h.disconnect(sessionID)
	}
}
