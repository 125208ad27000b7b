package handlers

import (
	"context"
	"log"

	"github.com/gorilla/websocket"
)

// Connection is one websocket spectator.
type Connection struct {
	ws   *websocket.Conn
	send chan []byte
}

// Hub maintains the set of spectator connections and fans every multicast
// event out to them.
type Hub struct {
	// Registered connections.
	connections map[*Connection]bool

	broadcast  chan []byte
	register   chan *Connection
	unregister chan *Connection

	// closed once Run returns
	done chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		connections: make(map[*Connection]bool),
		broadcast:   make(chan []byte, 256),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		done:        make(chan struct{}),
	}
}

// Run owns the connection set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for connection := range h.connections {
				close(connection.send)
				delete(h.connections, connection)
			}
			return
		case connection := <-h.register:
			h.connections[connection] = true
		case connection := <-h.unregister:
			if _, ok := h.connections[connection]; ok {
				delete(h.connections, connection)
				close(connection.send)
			}
		case message := <-h.broadcast:
			for connection := range h.connections {
				select {
				case connection.send <- message:
				default:
					log.Println("Dropping slow spectator")
					close(connection.send)
					delete(h.connections, connection)
				}
			}
		}
	}
}

func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	}
}

func (h *Hub) Register(c *Connection) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Connection) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
