package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/mapleleafu/typerace/game"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WsHandler upgrades a spectator connection. The spectator first receives a
// lobby snapshot as JSON, then every multicast event as a text frame.
func WsHandler(hub *Hub, state *game.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("Upgrade error:", err)
			return
		}

		connection := &Connection{send: make(chan []byte, 256), ws: conn}
		if snapshot, err := json.Marshal(state.Snapshot()); err == nil {
			connection.send <- snapshot
		}
		if !hub.Register(connection) {
			conn.Close()
			return
		}
		log.Printf("Spectator %s connected", r.RemoteAddr)

		go connection.writePump()
		connection.readPump(hub)
		log.Printf("Spectator %s disconnected", r.RemoteAddr)
	}
}

// readPump only watches for the spectator going away; spectators cannot
// send commands.
func (c *Connection) readPump(hub *Hub) {
	defer func() {
		hub.Unregister(c)
		c.ws.Close()
	}()

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Error reading from spectator: %v", err)
			}
			return
		}
	}
}

func (c *Connection) writePump() {
	defer c.ws.Close()

	for message := range c.send {
		if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("error writing message: %v", err)
			return
		}
	}
	c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
