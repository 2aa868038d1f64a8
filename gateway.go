package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// frame is the wire envelope: every message in either direction is
// {event, data}.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// client is one websocket connection. Game identity lives in the
// gateway's session table, not on the connection.
type client struct {
	conn *websocket.Conn
	send chan outFrame
}

type session struct {
	roomID   string
	playerID string
}

// Gateway owns every live connection: it binds connections to their
// (room, player) identity, fans outbound events to one client or a
// whole room, and reaps connections that stop answering pings.
type Gateway struct {
	cfg       *Config
	registry  *Registry
	questions []Question

	mu       sync.Mutex
	clients  map[*client]struct{}
	sessions map[*client]session
	byRoom   map[string]map[*client]struct{}
	alive    map[*client]bool
}

func newGateway(cfg *Config, registry *Registry, questions []Question) *Gateway {
	return &Gateway{
		cfg:       cfg,
		registry:  registry,
		questions: questions,
		clients:   make(map[*client]struct{}),
		sessions:  make(map[*client]session),
		byRoom:    make(map[string]map[*client]struct{}),
		alive:     make(map[*client]bool),
	}
}

func (g *Gateway) register(c *client) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clients[c] = struct{}{}
	g.alive[c] = true
}

// bind associates a connection with a (room, player) identity. Each
// connection carries at most one.
func (g *Gateway) bind(c *client, roomID, playerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.sessions[c] = session{roomID: roomID, playerID: playerID}
	if g.byRoom[roomID] == nil {
		g.byRoom[roomID] = make(map[*client]struct{})
	}
	g.byRoom[roomID][c] = struct{}{}
}

func (g *Gateway) session(c *client) (roomID, playerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.sessions[c]
	return s.roomID, s.playerID
}

// unbind drops a connection entirely and returns the identity it held.
func (g *Gateway) unbind(c *client) (roomID, playerID string, bound bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, open := g.clients[c]; open {
		g.closeLocked(c)
	}

	s, ok := g.sessions[c]
	if !ok {
		return "", "", false
	}
	delete(g.sessions, c)

	if peers := g.byRoom[s.roomID]; peers != nil {
		delete(peers, c)
		if len(peers) == 0 {
			delete(g.byRoom, s.roomID)
		}
	}
	return s.roomID, s.playerID, true
}

func (g *Gateway) markAlive(c *client) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, open := g.clients[c]; open {
		g.alive[c] = true
	}
}

// closeLocked retires a connection: closing send stops the writePump,
// which closes the socket, which ends the readPump.
func (g *Gateway) closeLocked(c *client) {
	delete(g.clients, c)
	delete(g.alive, c)
	close(c.send)
}

// sendLocked queues an event for one client. A client that cannot keep
// up is dropped rather than allowed to stall the caller.
func (g *Gateway) sendLocked(c *client, event string, data any) {
	if _, open := g.clients[c]; !open {
		return
	}
	select {
	case c.send <- outFrame{Event: event, Data: data}:
	default:
		g.closeLocked(c)
	}
}

func (g *Gateway) sendTo(c *client, event string, data any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sendLocked(c, event, data)
}

// broadcast fans an event to every connection bound to a room. Delivery
// is fire and forget: one dead client never blocks the rest, and a
// failed delivery rolls nothing back.
func (g *Gateway) broadcast(roomID, event string, data any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for c := range g.byRoom[roomID] {
		g.sendLocked(c, event, data)
	}
}

func (g *Gateway) sendError(c *client, err error) {
	g.sendTo(c, eventError, errorPayload{Message: err.Error()})
}

func (g *Gateway) readPump(c *client) {
	defer func() {
		g.handleDisconnect(c)
		_ = c.conn.Close()
	}()

	c.conn.SetPongHandler(func(string) error {
		g.markAlive(c)
		return nil
	})

	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			return
		}
		g.dispatch(c, f)
	}
}

// dispatch decodes and routes one inbound frame. Unknown events and
// undecodable payloads are logged and dropped; neither closes the
// connection.
func (g *Gateway) dispatch(c *client, f frame) {
	var err error

	switch f.Event {
	case eventCreateRoom:
		var req createRoomRequest
		if err = json.Unmarshal(f.Data, &req); err == nil {
			g.handleCreateRoom(c, req)
		}
	case eventJoinRoom:
		var req joinRoomRequest
		if err = json.Unmarshal(f.Data, &req); err == nil {
			g.handleJoinRoom(c, req)
		}
	case eventStartGame:
		var req roomRequest
		if err = json.Unmarshal(f.Data, &req); err == nil {
			g.handleStartGame(c, req)
		}
	case eventSubmitAnswer:
		var req submitAnswerRequest
		if err = json.Unmarshal(f.Data, &req); err == nil {
			g.handleSubmitAnswer(c, req)
		}
	case eventTakePenalty:
		var req playerRequest
		if err = json.Unmarshal(f.Data, &req); err == nil {
			g.handleTakePenalty(c, req)
		}
	case eventPlayRoulette:
		var req playerRequest
		if err = json.Unmarshal(f.Data, &req); err == nil {
			g.handlePlayRoulette(c, req)
		}
	case eventNextQuestion:
		var req roomRequest
		if err = json.Unmarshal(f.Data, &req); err == nil {
			g.handleNextQuestion(c, req)
		}
	default:
		logf(g.cfg, "GAMES: Dropping unknown event %q", f.Event)
		return
	}

	if err != nil {
		logf(g.cfg, "GAMES: Dropping malformed %s payload: %v", f.Event, err)
	}
}

func (c *client) writePump() {
	defer c.conn.Close()

	for f := range c.send {
		if err := c.conn.WriteJSON(f); err != nil {
			return
		}
	}
}

// pingLoop probes every connection on the configured interval. A
// connection that never answered the previous probe is treated as
// disconnected and closed; everyone else is marked unacknowledged and
// probed again. Pongs mark connections alive via readPump.
func (g *Gateway) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(g.cfg.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.sweep()
		}
	}
}

func (g *Gateway) sweep() {
	g.mu.Lock()
	var dead, live []*client
	for c := range g.clients {
		if g.alive[c] {
			g.alive[c] = false
			live = append(live, c)
		} else {
			dead = append(dead, c)
		}
	}
	g.mu.Unlock()

	for _, c := range dead {
		logf(g.cfg, "GAMES: Connection missed ping, dropping")
		g.handleDisconnect(c)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	}

	for _, c := range live {
		if c.conn != nil {
			// WriteControl is safe alongside the writePump.
			_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout))
		}
	}
}

func (g *Gateway) serveWS() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(g.cfg, "GAMES: Upgrade failed for %s: %v", realIP(r), err)
			return
		}

		c := &client{
			conn: conn,
			send: make(chan outFrame, 16),
		}
		g.register(c)

		go c.writePump()
		g.readPump(c)
	}
}

// serveJoinQR renders a PNG QR code for joining an existing room.
func (g *Gateway) serveJoinQR() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := ps.ByName("roomid")
		if _, ok := g.registry.get(roomID); !ok {
			http.NotFound(w, r)
			return
		}

		// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + g.cfg.prefix + "/join/" + roomID

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

// registerRouletteGame sets up routes so that:
//   - $prefix/ws              → shared websocket endpoint, all rooms
//   - $prefix/join/:roomid/qr → PNG QR code for joining that room
func registerRouletteGame(ctx context.Context, cfg *Config, mux *httprouter.Router, registry *Registry, questions []Question) *Gateway {
	g := newGateway(cfg, registry, questions)

	mux.GET(cfg.prefix+"/ws", g.serveWS())

	mux.GET(cfg.prefix+"/join/:roomid/qr", g.serveJoinQR())

	go g.pingLoop(ctx)

	return g
}
