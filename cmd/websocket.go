package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"storefront/internal/handlers"
	"storefront/internal/metrics"
	"storefront/internal/models"
	"storefront/internal/push"
)

const (
	readLimit     = 1 << 20
	readDeadline  = 120 * time.Second // extended by every pong
	writeDeadline = 5 * time.Second
	pingInterval  = 15 * time.Second
	commandWait   = 3 * time.Second
)

// ticketAccess decides whether a caller may join a ticket room.
type ticketAccess interface {
	Get(ctx context.Context, userID int64, role string, id int64) (models.Ticket, error)
}

type subscriber struct {
	userID int64
	role   string
	conn   *websocket.Conn
}

type roomMsg struct {
	room string
	env  push.Envelope
}

type directMsg struct {
	sub *subscriber
	env push.Envelope
}

type membership struct {
	sub  *subscriber
	room string
	join bool
}

// WebSocketManager fans events out to rooms. The maps are only touched by
// Run.
type WebSocketManager struct {
	clients map[*subscriber]map[string]struct{}
	rooms   map[string]map[*subscriber]struct{}

	register   chan *subscriber
	unregister chan *subscriber
	membership chan membership
	broadcast  chan roomMsg
	direct     chan directMsg
	done       chan struct{}

	infoLog  *log.Logger
	errorLog *log.Logger
}

func NewWebSocketManager(infoLog, errorLog *log.Logger) *WebSocketManager {
	return &WebSocketManager{
		clients:    make(map[*subscriber]map[string]struct{}),
		rooms:      make(map[string]map[*subscriber]struct{}),
		register:   make(chan *subscriber),
		unregister: make(chan *subscriber),
		membership: make(chan membership),
		broadcast:  make(chan roomMsg, 64),
		direct:     make(chan directMsg, 16),
		done:       make(chan struct{}),
		infoLog:    infoLog,
		errorLog:   errorLog,
	}
}

// Publish queues env for every connection in room.
func (ws *WebSocketManager) Publish(ctx context.Context, room string, env push.Envelope) error {
	if env.Room == "" {
		env.Room = room
	}
	select {
	case ws.broadcast <- roomMsg{room: room, env: env}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-ws.done:
		return nil
	}
}

// submit hands a request to Run. It gives up once Run has returned.
func submit[T any](ws *WebSocketManager, ch chan<- T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-ws.done:
		return false
	}
}

func (ws *WebSocketManager) Run(ctx context.Context) {
	defer close(ws.done)
	for {
		select {
		case <-ctx.Done():
			for sub := range ws.clients {
				_ = writeClose(sub.conn, websocket.CloseGoingAway, "server shutdown")
				_ = sub.conn.Close()
			}
			return

		case sub := <-ws.register:
			ws.clients[sub] = make(map[string]struct{})
			metrics.HubConnections.Inc()
			ws.infoLog.Printf("WS register user=%d", sub.userID)

		case sub := <-ws.unregister:
			ws.drop(sub)

		case m := <-ws.membership:
			joined, ok := ws.clients[m.sub]
			if !ok {
				continue
			}
			if m.join {
				joined[m.room] = struct{}{}
				if ws.rooms[m.room] == nil {
					ws.rooms[m.room] = make(map[*subscriber]struct{})
				}
				ws.rooms[m.room][m.sub] = struct{}{}
				continue
			}
			delete(joined, m.room)
			ws.leave(m.sub, m.room)

		case msg := <-ws.broadcast:
			for sub := range ws.rooms[msg.room] {
				ws.write(sub, msg.env)
			}

		case dm := <-ws.direct:
			if _, ok := ws.clients[dm.sub]; ok {
				ws.write(dm.sub, dm.env)
			}
		}
	}
}

func (ws *WebSocketManager) write(sub *subscriber, env push.Envelope) {
	_ = sub.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := sub.conn.WriteJSON(env); err != nil {
		ws.errorLog.Printf("WS send error to=%d: %v", sub.userID, err)
		ws.drop(sub)
	}
}

func (ws *WebSocketManager) leave(sub *subscriber, room string) {
	members := ws.rooms[room]
	delete(members, sub)
	if len(members) == 0 {
		delete(ws.rooms, room)
	}
}

func (ws *WebSocketManager) drop(sub *subscriber) {
	joined, ok := ws.clients[sub]
	if !ok {
		return
	}
	for room := range joined {
		ws.leave(sub, room)
	}
	delete(ws.clients, sub)
	_ = sub.conn.Close()
	metrics.HubConnections.Dec()
	ws.infoLog.Printf("WS unregister user=%d", sub.userID)
}

func (ws *WebSocketManager) reply(sub *subscriber, code, detail string) {
	env, err := push.NewEvent(push.EventError, map[string]string{"code": code, "detail": detail})
	if err != nil {
		return
	}
	submit(ws, ws.direct, directMsg{sub: sub, env: env})
}

// checkOrigin admits the configured origins. An empty list admits all.
func checkOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		for _, a := range allowed {
			a = strings.TrimRight(strings.TrimSpace(a), "/")
			if a == "*" || strings.EqualFold(a, origin) || strings.EqualFold(a, u.Scheme+"://"+u.Host) {
				return true
			}
		}
		return false
	}
}

// WebSocketHandler runs behind the JWT middleware, so the caller is already
// known when the connection is upgraded.
func (app *application) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	userID, role, ok := handlers.UserFrom(r.Context())
	if !ok {
		app.clientError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}

	conn, err := app.upgrader.Upgrade(w, r, nil)
	if err != nil {
		app.errorLog.Println("WebSocket upgrade error:", err)
		return
	}

	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	sub := &subscriber{userID: userID, role: role, conn: conn}
	if !submit(app.wsManager, app.wsManager.register, sub) {
		_ = writeClose(conn, websocket.CloseGoingAway, "server shutdown")
		_ = conn.Close()
		return
	}

	go pingLoop(app.wsManager, sub)
	go app.handleWebSocketCommands(sub)
}

func pingLoop(ws *WebSocketManager, sub *subscriber) {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for range t.C {
		if err := sub.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
			_ = writeClose(sub.conn, websocket.CloseGoingAway, "ping error")
			submit(ws, ws.unregister, sub)
			return
		}
	}
}

func (app *application) handleWebSocketCommands(sub *subscriber) {
	defer submit(app.wsManager, app.wsManager.unregister, sub)

	for {
		_, data, err := sub.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				app.errorLog.Printf("WS read error user=%d: %v", sub.userID, err)
			}
			return
		}

		var cmd push.Envelope
		if err := json.Unmarshal(data, &cmd); err != nil {
			app.wsManager.reply(sub, "BAD_FRAME", "frame is not valid JSON")
			continue
		}
		app.handleCommand(sub, cmd)
	}
}

func (app *application) handleCommand(sub *subscriber, cmd push.Envelope) {
	own := push.UserRoom(sub.userID)

	switch cmd.Type {
	case push.CommandSubscribe:
		if cmd.Room != "" && cmd.Room != own {
			app.wsManager.reply(sub, "FORBIDDEN", "only your own room can be subscribed")
			return
		}
		submit(app.wsManager, app.wsManager.membership, membership{sub: sub, room: own, join: true})

	case push.CommandJoinTicket:
		if cmd.TicketID <= 0 {
			app.wsManager.reply(sub, "INVALID_TICKET", "ticket_id is required")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), commandWait)
		_, err := app.tickets.Get(ctx, sub.userID, sub.role, cmd.TicketID)
		cancel()
		if err != nil {
			app.wsManager.reply(sub, "FORBIDDEN", "ticket not available")
			return
		}
		submit(app.wsManager, app.wsManager.membership, membership{sub: sub, room: push.TicketRoom(cmd.TicketID), join: true})

	case push.CommandLeaveTicket:
		submit(app.wsManager, app.wsManager.membership, membership{sub: sub, room: push.TicketRoom(cmd.TicketID)})

	default:
		app.wsManager.reply(sub, "UNKNOWN_COMMAND", "unsupported command "+cmd.Type)
	}
}

func writeClose(conn *websocket.Conn, code int, reason string) error {
	return conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(writeDeadline),
	)
}
