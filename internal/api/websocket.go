package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stagecraft-systems/motion-core/internal/infrastructure/config"
	"github.com/stagecraft-systems/motion-core/internal/infrastructure/logging"
	"github.com/stagecraft-systems/motion-core/internal/infrastructure/mqtt"
)

// Broadcast channels a client can subscribe to. device.state carries the
// cached axis-state documents published by the poll loops; device.event
// carries lifecycle transitions (connected, disconnected, fault).
const (
	ChannelDeviceState = "device.state"
	ChannelDeviceEvent = "device.event"
)

// Client-to-server message types, plus the server frame types they elicit.
const (
	msgSubscribe   = "subscribe"
	msgUnsubscribe = "unsubscribe"
	msgPing        = "ping"
	msgPong        = "pong"
	msgEvent       = "event"
	msgResponse    = "response"
	msgError       = "error"
)

// outboxSize bounds the per-session send queue. A session that cannot
// drain this many frames is dropped from broadcasts rather than allowed
// to stall the poll loops upstream.
const outboxSize = 256

// wsFrame is the wire format in both directions.
type wsFrame struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// channelList is the payload shape for subscribe and unsubscribe.
type channelList struct {
	Channels []string `json:"channels"`
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin is enforced by the CORS middleware, not here.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub fans telemetry out to connected WebSocket sessions. Each session
// holds its own channel subscription set; Broadcast walks a snapshot of
// the session list so a slow client never blocks the caller.
type Hub struct {
	cfg config.WebSocketConfig
	log *logging.Logger

	mu       sync.RWMutex
	sessions map[*wsSession]struct{}
}

// NewHub returns an empty hub. Sessions attach via handleWebSocket.
func NewHub(cfg config.WebSocketConfig, log *logging.Logger) *Hub {
	return &Hub{
		cfg:      cfg,
		log:      log,
		sessions: make(map[*wsSession]struct{}),
	}
}

// Run blocks until ctx is cancelled, then tears down every session.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for sess := range h.sessions {
		close(sess.outbox)
		if sess.conn != nil {
			sess.conn.Close()
		}
		delete(h.sessions, sess)
	}
}

// ClientCount reports the number of attached sessions.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Broadcast delivers payload to every session subscribed to channel.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(wsFrame{
		Type:      msgEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.log.Error("marshalling broadcast frame", "error", err)
		return
	}

	// Snapshot under the hub lock; send without it so per-session locks
	// are never nested inside ours.
	h.mu.RLock()
	sessions := make([]*wsSession, 0, len(h.sessions))
	for sess := range h.sessions {
		sessions = append(sessions, sess)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, sess := range sessions {
		if sess.subscribed(channel) {
			sess.enqueue(data)
			delivered++
		}
	}
	if delivered > 0 {
		h.log.Debug("broadcast delivered", "channel", channel, "sessions", delivered)
	}
}

func (h *Hub) attach(sess *wsSession) {
	h.mu.Lock()
	h.sessions[sess] = struct{}{}
	h.mu.Unlock()
	h.log.Debug("websocket session opened", "sessions", h.ClientCount())
}

// detach removes the session and closes its outbox exactly once: only
// the goroutine that finds the session still in the map does the close,
// so shutdown and read-loop exit cannot double-close.
func (h *Hub) detach(sess *wsSession) {
	h.mu.Lock()
	_, present := h.sessions[sess]
	delete(h.sessions, sess)
	h.mu.Unlock()

	if present {
		close(sess.outbox)
	}
	h.log.Debug("websocket session closed", "sessions", h.ClientCount())
}

// subscribeStateUpdates bridges the telemetry bus onto the hub: device
// state and event topics are re-broadcast to subscribed sessions. With
// MQTT disabled the WebSocket endpoint still accepts connections, it
// just has nothing to say.
func (s *Server) subscribeStateUpdates() error {
	if s.mqtt == nil {
		return nil
	}

	bridge := func(channel string) mqtt.MessageHandler {
		return func(topic string, payload []byte) error {
			if s.hub == nil {
				return nil
			}
			var doc map[string]any
			if err := json.Unmarshal(payload, &doc); err != nil {
				s.logger.Warn("unparseable bus message, not relayed", "topic", topic, "error", err)
				return nil
			}
			s.hub.Broadcast(channel, doc)
			return nil
		}
	}

	if err := s.mqtt.Subscribe(mqtt.Topics{}.AllDeviceStates(), 0, bridge(ChannelDeviceState)); err != nil {
		return err
	}
	return s.mqtt.Subscribe(mqtt.Topics{}.AllDeviceEvents(), 1, bridge(ChannelDeviceEvent))
}

// handleWebSocket upgrades the connection. Browsers cannot set an
// Authorization header on the upgrade request, so auth rides in a
// short-lived single-use ticket minted by POST /auth/ws-ticket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	if !s.tickets.validate(ticket) {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	sess := &wsSession{
		hub:      s.hub,
		conn:     conn,
		outbox:   make(chan []byte, outboxSize),
		channels: make(map[string]struct{}),
	}
	s.hub.attach(sess)

	go sess.writeLoop(s.wsCfg)
	go sess.readLoop(s.wsCfg)
}

// wsSession is one attached client: a gorilla connection, its outbound
// queue, and the set of channels it asked for.
type wsSession struct {
	hub    *Hub
	conn   *websocket.Conn
	outbox chan []byte

	mu       sync.RWMutex
	channels map[string]struct{}
}

// readLoop consumes client frames until the connection dies, then
// detaches the session. Any inbound traffic refreshes the read deadline,
// so a client that never answers pings but keeps talking stays alive.
func (sess *wsSession) readLoop(cfg config.WebSocketConfig) {
	defer func() {
		sess.hub.detach(sess)
		sess.conn.Close()
	}()

	deadline := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second

	sess.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	//nolint:errcheck // best-effort deadline
	sess.conn.SetReadDeadline(time.Now().Add(deadline))
	sess.conn.SetPongHandler(func(string) error {
		return sess.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				sess.hub.log.Warn("websocket read error", "error", err)
			} else {
				sess.hub.log.Debug("websocket closed", "error", err)
			}
			return
		}
		//nolint:errcheck // best-effort deadline
		sess.conn.SetReadDeadline(time.Now().Add(deadline))
		sess.dispatch(data)
	}
}

// writeLoop drains the outbox and keeps the connection alive with
// protocol pings. It owns all writes to the connection.
func (sess *wsSession) writeLoop(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		sess.conn.Close()
	}()

	writeWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case data, ok := <-sess.outbox:
			if !ok {
				//nolint:errcheck // best-effort close frame
				sess.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // write error surfaces below
			sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // ping error surfaces below
			sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch routes one inbound frame.
func (sess *wsSession) dispatch(data []byte) {
	var frame wsFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		sess.replyError("", "invalid JSON message")
		return
	}

	switch frame.Type {
	case msgSubscribe:
		sess.updateChannels(frame, true)
	case msgUnsubscribe:
		sess.updateChannels(frame, false)
	case msgPing:
		sess.reply(frame.ID, msgPong, nil)
	default:
		sess.replyError(frame.ID, "unknown message type: "+frame.Type)
	}
}

// updateChannels handles subscribe and unsubscribe, which differ only in
// whether the named channels are added or removed.
func (sess *wsSession) updateChannels(frame wsFrame, add bool) {
	raw, err := json.Marshal(frame.Payload)
	if err != nil {
		sess.replyError(frame.ID, "invalid payload")
		return
	}
	var list channelList
	if err := json.Unmarshal(raw, &list); err != nil {
		sess.replyError(frame.ID, "invalid payload")
		return
	}

	sess.mu.Lock()
	for _, ch := range list.Channels {
		if add {
			sess.channels[ch] = struct{}{}
		} else {
			delete(sess.channels, ch)
		}
	}
	sess.mu.Unlock()

	if add {
		sess.hub.log.Info("websocket session subscribed", "channels", list.Channels)
		sess.reply(frame.ID, msgResponse, map[string]any{"subscribed": list.Channels})
		return
	}
	sess.reply(frame.ID, msgResponse, map[string]any{"unsubscribed": list.Channels})
}

func (sess *wsSession) subscribed(channel string) bool {
	sess.mu.RLock()
	defer sess.mu.RUnlock()
	_, ok := sess.channels[channel]
	return ok
}

// enqueue offers data to the outbox without blocking. A full buffer
// means a slow client and the frame is dropped; a closed outbox means
// the session detached mid-broadcast and the panic is absorbed.
func (sess *wsSession) enqueue(data []byte) {
	defer func() {
		recover() //nolint:errcheck
	}()

	select {
	case sess.outbox <- data:
	default:
	}
}

func (sess *wsSession) reply(id, frameType string, payload any) {
	data, err := json.Marshal(wsFrame{
		Type:      frameType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	sess.enqueue(data)
}

func (sess *wsSession) replyError(id, message string) {
	sess.reply(id, msgError, map[string]string{"message": message})
}
