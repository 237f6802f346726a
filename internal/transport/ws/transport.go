package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"callsync-core/pkg/logger"
)

// Signal message types exchanged with the signaling endpoint
const (
	SignalTypeJoin  = "join"
	SignalTypeLeave = "leave"
)

// SignalMessage is one frame on the signaling socket
type SignalMessage struct {
	Type          string    `json:"type"`
	RoomReference string    `json:"room_reference"`
	Timestamp     time.Time `json:"timestamp"`
}

// Config controls the signaling connection
type Config struct {
	// URL of the signaling endpoint, e.g. wss://host/ws/signaling
	URL string
	// HandshakeTimeout bounds the dial
	HandshakeTimeout time.Duration
	// PingInterval drives the liveness probe; 0 disables pings
	PingInterval time.Duration
}

// Transport is a reference CallTransport over a signaling WebSocket. It
// satisfies the reconnect target contract: Reconnect plus an IsConnected
// check that is consulted after every reconnect attempt.
type Transport struct {
	cfg    Config
	dialer *websocket.Dialer

	mu        sync.Mutex
	conn      *websocket.Conn
	room      string // room joined on this connection, for rejoin on reconnect
	connected bool
	readStop  context.CancelFunc

	// onDisconnect fires once per connection loss
	onDisconnect func(reason string)
}

// NewTransport creates a Transport. onDisconnect may be nil.
func NewTransport(cfg Config, onDisconnect func(reason string)) *Transport {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	return &Transport{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		onDisconnect: onDisconnect,
	}
}

// Connect dials the signaling endpoint
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connectLocked(ctx)
}

func (t *Transport) connectLocked(ctx context.Context) error {
	if t.connected {
		return nil
	}

	conn, _, err := t.dialer.DialContext(ctx, t.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial signaling endpoint: %w", err)
	}

	t.conn = conn
	t.connected = true

	readCtx, cancel := context.WithCancel(context.Background())
	t.readStop = cancel
	go t.readPump(readCtx, conn)
	if t.cfg.PingInterval > 0 {
		go t.pingLoop(readCtx, conn)
	}

	logger.Info("Signaling connection established", zap.String("url", t.cfg.URL))
	return nil
}

// Join enters the call room identified by roomReference
func (t *Transport) Join(ctx context.Context, roomReference string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		if err := t.connectLocked(ctx); err != nil {
			return err
		}
	}

	if err := t.sendLocked(SignalMessage{
		Type:          SignalTypeJoin,
		RoomReference: roomReference,
		Timestamp:     time.Now(),
	}); err != nil {
		return fmt.Errorf("failed to join room: %w", err)
	}

	t.room = roomReference
	logger.Info("Joined call room", zap.String("room_reference", roomReference))
	return nil
}

// Leave exits the current room and closes the connection
func (t *Transport) Leave(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected && t.room != "" {
		if err := t.sendLocked(SignalMessage{
			Type:          SignalTypeLeave,
			RoomReference: t.room,
			Timestamp:     time.Now(),
		}); err != nil {
			logger.Warn("Failed to send leave message", zap.Error(err))
		}
	}
	t.room = ""
	t.closeLocked()
	return nil
}

// Reconnect re-establishes the connection and rejoins the previous room
func (t *Transport) Reconnect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closeLocked()
	if err := t.connectLocked(ctx); err != nil {
		return err
	}

	if t.room != "" {
		if err := t.sendLocked(SignalMessage{
			Type:          SignalTypeJoin,
			RoomReference: t.room,
			Timestamp:     time.Now(),
		}); err != nil {
			return fmt.Errorf("failed to rejoin room after reconnect: %w", err)
		}
	}
	return nil
}

// IsConnected reports whether the socket is currently live
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *Transport) sendLocked(msg SignalMessage) error {
	data, err := json.Marshal(&msg)
	if err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *Transport) closeLocked() {
	if t.readStop != nil {
		t.readStop()
		t.readStop = nil
	}
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
	}
	t.connected = false
}

// readPump drains the socket; a read error marks the connection lost
func (t *Transport) readPump(ctx context.Context, conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			t.markDisconnected(conn, err.Error())
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// pingLoop probes liveness; a failed write marks the connection lost
func (t *Transport) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				t.markDisconnected(conn, err.Error())
				return
			}
		}
	}
}

// markDisconnected transitions to disconnected once per connection
func (t *Transport) markDisconnected(conn *websocket.Conn, reason string) {
	t.mu.Lock()
	if t.conn != conn {
		// A newer connection already replaced this one
		t.mu.Unlock()
		return
	}
	t.closeLocked()
	handler := t.onDisconnect
	t.mu.Unlock()

	logger.Warn("Signaling connection lost", zap.String("reason", reason))
	if handler != nil {
		handler(reason)
	}
}
