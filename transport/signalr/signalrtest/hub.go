// Package signalrtest provides an in-process chat hub that speaks the
// SignalR JSON hub protocol, together with the history endpoint, for tests.
//
// The hub answers SendMessage invocations by broadcasting ReceiveMessage to
// every connected client, the way the real chat hub does, and records what
// it received. Its controls let tests drop connections, close them with or
// without permission to reconnect, fail sends and refuse new connections.
package signalrtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/wricardo/hubchat/chat/model"
)

const (
	HubPath     = "/chathub"
	HistoryPath = "/api/ChatMessage"

	// Time allowed to write a message to the client.
	writeWait = 10 * time.Second

	// Time allowed between two messages from the client.
	clientTimeout = 60 * time.Second

	// Maximum message size allowed from the client.
	maxMessageSize = 64 * 1024

	recordSeparator = 0x1e
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub is a fake chat hub. Create it with NewHub or NewServer.
type Hub struct {
	router  *mux.Router
	baseURL string

	// Owned by the run loop.
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	control    chan func()
	quit       chan struct{}
	stopped    chan struct{}
	closeOnce  sync.Once

	mu              sync.Mutex
	tokens          map[string]bool
	history         []model.HistoryRecord
	received        []model.OutgoingMessage
	negotiations    int
	failSends       string
	failHistory     bool
	rejectHandshake string
	refuse          bool
	sentiment       func(text string) string
	pingPeriod      time.Duration
}

// NewHub creates a running hub. Serve it with any http.Server and stop it
// with Close.
func NewHub() *Hub {
	h := &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		control:    make(chan func()),
		quit:       make(chan struct{}),
		stopped:    make(chan struct{}),
		tokens:     make(map[string]bool),
		pingPeriod: 15 * time.Second,
	}

	r := mux.NewRouter()
	r.HandleFunc(HubPath+"/negotiate", h.handleNegotiate).Methods(http.MethodPost)
	r.HandleFunc(HubPath, h.handleConnect).Methods(http.MethodGet)
	r.HandleFunc(HistoryPath, h.handleHistory).Methods(http.MethodGet)
	h.router = r

	go h.run()
	return h
}

// NewServer starts a hub on a local test server that is shut down when
// the test ends.
func NewServer(t testing.TB) *Hub {
	t.Helper()

	h := NewHub()
	srv := httptest.NewServer(h)
	h.baseURL = srv.URL

	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return h
}

// ServeHTTP routes negotiate, hub and history requests
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// URL is the server base URL, set by NewServer
func (h *Hub) URL() string {
	return h.baseURL
}

// HubURL is the hub endpoint, set by NewServer
func (h *Hub) HubURL() string {
	return h.baseURL + HubPath
}

// Close disconnects every client and stops the hub
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.quit)
		<-h.stopped
	})
}

// run owns the client set
func (h *Hub) run() {
	defer close(h.stopped)

	for {
		select {
		case c := <-h.register:
			h.clients[c] = true

		case c := <-h.unregister:
			h.unregisterClient(c)

		case fn := <-h.control:
			fn()

		case <-h.quit:
			for c := range h.clients {
				h.unregisterClient(c)
				c.conn.Close()
			}
			return
		}
	}
}

// do runs fn on the run loop and waits for it. It reports false once the
// hub is closed.
func (h *Hub) do(fn func()) bool {
	done := make(chan struct{})
	select {
	case h.control <- func() { fn(); close(done) }:
		<-done
		return true
	case <-h.quit:
		return false
	}
}

func (h *Hub) unregisterClient(c *client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// enqueue queues data for c, dropping a client that cannot keep up.
// Must run on the run loop.
func (h *Hub) enqueue(c *client, data []byte) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		h.unregisterClient(c)
	}
}

func (h *Hub) broadcast(data []byte) {
	h.do(func() {
		for c := range h.clients {
			h.enqueue(c, data)
		}
	})
}

// Broadcast sends ReceiveMessage to every client, as if another user had
// posted. An empty sentiment is sent as null.
func (h *Hub) Broadcast(sender, text, sentiment string) {
	h.broadcast(receiveMessage(sender, text, sentiment))
}

// DropAll closes every client socket without a close message, like a
// network failure.
func (h *Hub) DropAll() {
	h.do(func() {
		for c := range h.clients {
			c.conn.Close()
		}
	})
}

// CloseAll sends a Close message to every client and disconnects them.
func (h *Hub) CloseAll(reason string, allowReconnect bool) {
	msg := map[string]any{"type": 7, "allowReconnect": allowReconnect}
	if reason != "" {
		msg["error"] = reason
	}
	data := record(msg)

	h.do(func() {
		for c := range h.clients {
			h.enqueue(c, data)
			h.unregisterClient(c)
		}
	})
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	n := 0
	h.do(func() { n = len(h.clients) })
	return n
}

// Negotiations returns how many negotiate requests were served
func (h *Hub) Negotiations() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.negotiations
}

// Received returns the messages sent to the hub so far
func (h *Hub) Received() []model.OutgoingMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]model.OutgoingMessage, len(h.received))
	copy(out, h.received)
	return out
}

// SetHistory replaces the stored message history
func (h *Hub) SetHistory(records []model.HistoryRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history = append([]model.HistoryRecord(nil), records...)
}

// SetFailHistory makes the history endpoint answer 500
func (h *Hub) SetFailHistory(fail bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failHistory = fail
}

// SetFailSends makes SendMessage complete with the given error. An empty
// reason restores normal behaviour.
func (h *Hub) SetFailSends(reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failSends = reason
}

// SetRejectHandshake makes the handshake fail with reason. An empty reason
// restores normal behaviour.
func (h *Hub) SetRejectHandshake(reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rejectHandshake = reason
}

// SetRefuseConnections makes negotiate and connect answer 503
func (h *Hub) SetRefuseConnections(refuse bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refuse = refuse
}

// SetSentiment installs the classifier used for broadcast messages
func (h *Hub) SetSentiment(classify func(text string) string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sentiment = classify
}

// SetPingPeriod changes how often the hub pings new clients
func (h *Hub) SetPingPeriod(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pingPeriod = d
}

type negotiateResponse struct {
	NegotiateVersion    int                  `json:"negotiateVersion"`
	ConnectionID        string               `json:"connectionId"`
	ConnectionToken     string               `json:"connectionToken"`
	AvailableTransports []availableTransport `json:"availableTransports"`
}

type availableTransport struct {
	Transport       string   `json:"transport"`
	TransferFormats []string `json:"transferFormats"`
}

func (h *Hub) handleNegotiate(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.refuse {
		h.mu.Unlock()
		http.Error(w, "hub unavailable", http.StatusServiceUnavailable)
		return
	}
	h.negotiations++
	token := uuid.NewString()
	h.tokens[token] = true
	h.mu.Unlock()

	// Clients connect with either field as the id.
	writeJSON(w, negotiateResponse{
		NegotiateVersion: 1,
		ConnectionID:     token,
		ConnectionToken:  token,
		AvailableTransports: []availableTransport{
			{Transport: "WebSockets", TransferFormats: []string{"Text", "Binary"}},
		},
	})
}

func (h *Hub) handleConnect(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	refuse := h.refuse
	token := r.URL.Query().Get("id")
	known := token == "" || h.tokens[token]
	delete(h.tokens, token)
	reject := h.rejectHandshake
	pingPeriod := h.pingPeriod
	h.mu.Unlock()

	if refuse {
		http.Error(w, "hub unavailable", http.StatusServiceUnavailable)
		return
	}
	if !known {
		http.Error(w, "unknown connection id", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	if !handshake(conn, reject) {
		conn.Close()
		return
	}

	c := &client{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, 256),
		pingPeriod: pingPeriod,
	}

	select {
	case h.register <- c:
	case <-h.quit:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (h *Hub) handleHistory(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	fail := h.failHistory
	records := append([]model.HistoryRecord{}, h.history...)
	h.mu.Unlock()

	if fail {
		http.Error(w, `{"error":"history unavailable"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, records)
}

// invoke answers one client invocation.
func (h *Hub) invoke(c *client, msg inbound) {
	if msg.Target != "SendMessage" {
		c.complete(msg.InvocationID, "Unknown hub method '"+msg.Target+"'")
		return
	}

	h.mu.Lock()
	failure := h.failSends
	classify := h.sentiment
	h.mu.Unlock()

	if failure != "" {
		c.complete(msg.InvocationID, failure)
		return
	}

	var out model.OutgoingMessage
	if len(msg.Arguments) != 1 || json.Unmarshal(msg.Arguments[0], &out) != nil {
		c.complete(msg.InvocationID, "Failed to bind SendMessage arguments")
		return
	}

	sentiment := ""
	if classify != nil {
		sentiment = classify(out.Message)
	}

	stored := model.HistoryRecord{Username: out.Username, Message: out.Message}
	if sentiment != "" {
		stored.Sentiment = &sentiment
	}

	h.mu.Lock()
	h.received = append(h.received, out)
	h.history = append(h.history, stored)
	h.mu.Unlock()

	h.broadcast(receiveMessage(out.Username, out.Message, sentiment))
	c.complete(msg.InvocationID, "")
}

func receiveMessage(sender, text, sentiment string) []byte {
	var s any
	if sentiment != "" {
		s = sentiment
	}
	return record(map[string]any{
		"type":      1,
		"target":    "ReceiveMessage",
		"arguments": []any{sender, text, s},
	})
}

func record(v any) []byte {
	data, _ := json.Marshal(v)
	return append(data, recordSeparator)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
