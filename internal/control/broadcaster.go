package control

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Broadcaster fans out enforcement decisions to every connected websocket
// client (spec §6.2 live tail). A slow client is dropped rather than
// allowed to block the others — its send channel is bounded and a full
// channel means the client is disconnected.
type Broadcaster struct {
	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewBroadcaster builds an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{clients: make(map[*client]struct{})}
}

// Broadcast marshals event to JSON and enqueues it for every connected
// client, dropping any client whose send buffer is full.
func (b *Broadcaster) Broadcast(event interface{}) {
	body, err := json.Marshal(event)
	if err != nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		select {
		case c.send <- body:
		default:
			b.removeLocked(c)
		}
	}
}

func (b *Broadcaster) add(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[c] = struct{}{}
}

func (b *Broadcaster) remove(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(c)
}

func (b *Broadcaster) removeLocked(c *client) {
	if _, ok := b.clients[c]; !ok {
		return
	}
	delete(b.clients, c)
	close(c.send)
	c.conn.Close()
}

func (s *Server) getTail(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	cl := &client{conn: conn, send: make(chan []byte, 32)}
	s.tail.add(cl)
	defer s.tail.remove(cl)

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.tail.remove(cl)
				return
			}
		}
	}()

	for body := range cl.send {
		if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
			return
		}
	}
}
