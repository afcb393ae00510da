package signalrtest

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

type inbound struct {
	Type         int               `json:"type"`
	InvocationID string            `json:"invocationId"`
	Target       string            `json:"target"`
	Arguments    []json.RawMessage `json:"arguments"`
	Protocol     string            `json:"protocol"`
}

// client is one connected hub client
type client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	pingPeriod time.Duration
}

// handshake reads the protocol handshake and answers it
func handshake(conn *websocket.Conn, reject string) bool {
	conn.SetReadDeadline(time.Now().Add(writeWait))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return false
	}
	conn.SetReadDeadline(time.Time{})

	records := split(data)
	if len(records) == 0 {
		return false
	}

	var req inbound
	if err := json.Unmarshal(records[0], &req); err != nil {
		return false
	}

	response := map[string]any{}
	switch {
	case reject != "":
		response["error"] = reject
	case req.Protocol != "json":
		response["error"] = "The protocol '" + req.Protocol + "' is not supported."
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, record(response)); err != nil {
		return false
	}
	return response["error"] == nil
}

// readPump pumps invocations from the client to the hub
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.quit:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		c.conn.SetReadDeadline(time.Now().Add(clientTimeout))
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		for _, raw := range split(data) {
			var msg inbound
			if err := json.Unmarshal(raw, &msg); err != nil {
				continue
			}
			switch msg.Type {
			case 1:
				c.hub.invoke(c, msg)
			case 7:
				return
			}
		}
	}
}

// writePump pumps queued records from the hub to the client
func (c *client) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Records are self-delimiting, so queued ones share the frame
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, record(map[string]int{"type": 6})); err != nil {
				return
			}
		}
	}
}

// complete answers an invocation. Invocations without an id expect no answer.
func (c *client) complete(invocationID, failure string) {
	if invocationID == "" {
		return
	}
	msg := map[string]any{"type": 3, "invocationId": invocationID}
	if failure != "" {
		msg["error"] = failure
	}
	data := record(msg)
	c.hub.do(func() { c.hub.enqueue(c, data) })
}

func split(frame []byte) [][]byte {
	var out [][]byte
	for _, part := range bytes.Split(frame, []byte{recordSeparator}) {
		if len(bytes.TrimSpace(part)) > 0 {
			out = append(out, part)
		}
	}
	return out
}
