package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// PushSource consumes the brokerage websocket event stream: ORDER_UPDATE,
// POSITIONS_UPDATE and QUOTE_UPDATE frames as JSON.
type PushSource struct {
	url    string
	header http.Header

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	latest    map[string]OrderUpdate
	waiters   map[string][]chan OrderUpdate

	// Callbacks; set before Run
	OnQuote       func(QuoteTick)
	OnStateChange func(connected bool)

	lastMsgTime time.Time
}

// NewPushSource creates a push source for the given stream endpoint.
func NewPushSource(wsURL, accessToken string) *PushSource {
	header := make(http.Header)
	header.Set("Authorization", "Bearer "+accessToken)
	header.Set("User-Agent", "Mozilla/5.0")

	return &PushSource{
		url:     wsURL,
		header:  header,
		latest:  make(map[string]OrderUpdate),
		waiters: make(map[string][]chan OrderUpdate),
	}
}

// frame is the wire envelope for every stream message.
type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// connect dials the endpoint and subscribes to the event channels.
func (s *PushSource) connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(s.url, s.header)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", s.url, err)
	}

	sub := map[string]interface{}{
		"action":   "subscribe",
		"channels": []string{"ORDER_UPDATE", "POSITIONS_UPDATE", "QUOTE_UPDATE"},
	}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return fmt.Errorf("failed to send subscription: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.lastMsgTime = time.Now()
	s.mu.Unlock()

	s.notifyState(true)
	log.Printf("✅ Connected to event stream %s", s.url)
	return nil
}

// Run drives the read loop with reconnect and exponential backoff until the
// context is cancelled.
func (s *PushSource) Run(ctx context.Context) {
	reconnectDelay := 5 * time.Second
	maxReconnectDelay := 60 * time.Second

	for {
		select {
		case <-ctx.Done():
			s.close()
			return
		default:
		}

		if err := s.connect(); err != nil {
			log.Printf("⚠️  Event stream connection failed: %v", err)
			s.notifyState(false)
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
			reconnectDelay *= 2
			if reconnectDelay > maxReconnectDelay {
				reconnectDelay = maxReconnectDelay
			}
			continue
		}
		reconnectDelay = 5 * time.Second

		pingCtx, stopPing := context.WithCancel(ctx)
		go s.pingLoop(pingCtx, 25*time.Second)
		s.readLoop(ctx)
		stopPing()

		s.markDisconnected()
		select {
		case <-ctx.Done():
			return
		default:
			log.Printf("🔄 Event stream dropped, reconnecting in %v...", reconnectDelay)
		}
	}
}

// readLoop consumes frames until the connection breaks.
func (s *PushSource) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return
		}

		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			select {
			case <-ctx.Done():
			default:
				log.Printf("⚠️  Event stream read error: %v", err)
			}
			return
		}

		s.mu.Lock()
		s.lastMsgTime = time.Now()
		s.mu.Unlock()

		switch f.Type {
		case "ORDER_UPDATE":
			var upd OrderUpdate
			if err := json.Unmarshal(f.Payload, &upd); err != nil {
				log.Printf("⚠️  Malformed ORDER_UPDATE frame: %v", err)
				continue
			}
			s.dispatchOrderUpdate(upd)

		case "QUOTE_UPDATE":
			var tick QuoteTick
			if err := json.Unmarshal(f.Payload, &tick); err != nil {
				continue
			}
			if s.OnQuote != nil {
				s.OnQuote(tick)
			}

		case "POSITIONS_UPDATE", "PING", "PONG":
			// positions snapshots are re-fetched over HTTP when needed

		default:
			// unknown frame types are ignored, the provider adds them freely
		}
	}
}

// pingLoop keeps the connection alive.
func (s *PushSource) pingLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			conn := s.conn
			s.mu.Unlock()
			if conn == nil {
				return
			}
			if err := conn.WriteJSON(map[string]string{"action": "ping"}); err != nil {
				return
			}
		}
	}
}

// dispatchOrderUpdate records the latest state and wakes any waiters.
func (s *PushSource) dispatchOrderUpdate(upd OrderUpdate) {
	s.mu.Lock()
	s.latest[upd.OrderID] = upd
	waiters := s.waiters[upd.OrderID]
	delete(s.waiters, upd.OrderID)
	s.mu.Unlock()

	for _, ch := range waiters {
		ch <- upd
	}
}

// WaitForOrderUpdate implements stream.Source. An update that already
// arrived for the order is returned immediately.
func (s *PushSource) WaitForOrderUpdate(ctx context.Context, orderID string, timeout time.Duration) (*OrderUpdate, bool) {
	s.mu.Lock()
	if upd, ok := s.latest[orderID]; ok {
		s.mu.Unlock()
		return &upd, true
	}
	ch := make(chan OrderUpdate, 1)
	s.waiters[orderID] = append(s.waiters[orderID], ch)
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case upd := <-ch:
		return &upd, true
	case <-timer.C:
		s.removeWaiter(orderID, ch)
		return nil, false
	case <-ctx.Done():
		s.removeWaiter(orderID, ch)
		return nil, false
	}
}

func (s *PushSource) removeWaiter(orderID string, ch chan OrderUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.waiters[orderID]
	for i, c := range list {
		if c == ch {
			s.waiters[orderID] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

// Connected reports whether the stream currently has a live connection.
func (s *PushSource) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *PushSource) markDisconnected() {
	s.mu.Lock()
	wasConnected := s.connected
	s.connected = false
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()
	if wasConnected {
		s.notifyState(false)
	}
}

func (s *PushSource) close() {
	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connected = false
	s.mu.Unlock()
}

func (s *PushSource) notifyState(connected bool) {
	if s.OnStateChange != nil {
		s.OnStateChange(connected)
	}
}
