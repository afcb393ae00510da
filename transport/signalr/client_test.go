package signalr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wricardo/hubchat/chat/model"
	"github.com/wricardo/hubchat/transport/signalr/signalrtest"
)

type event struct {
	target string
	args   []json.RawMessage
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) handle(target string, args []json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{target: target, args: args})
}

func (r *recorder) all() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events...)
}

func dial(t *testing.T, hub *signalrtest.Hub, opts Options, handler Handler) *Conn {
	t.Helper()
	conn, err := NewClient(hub.HubURL(), opts, zerolog.Nop()).Dial(context.Background(), handler)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestClient_Dial(t *testing.T) {
	t.Run("negotiates and connects", func(t *testing.T) {
		hub := signalrtest.NewServer(t)

		dial(t, hub, Options{}, func(string, []json.RawMessage) {})

		assert.Equal(t, 1, hub.Negotiations())
		assert.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)
	})

	t.Run("skips negotiation", func(t *testing.T) {
		hub := signalrtest.NewServer(t)

		dial(t, hub, Options{SkipNegotiation: true}, func(string, []json.RawMessage) {})

		assert.Equal(t, 0, hub.Negotiations())
		assert.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)
	})

	t.Run("handshake rejected", func(t *testing.T) {
		hub := signalrtest.NewServer(t)
		hub.SetRejectHandshake("protocol not allowed")

		_, err := NewClient(hub.HubURL(), Options{}, zerolog.Nop()).Dial(context.Background(), nil)

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrHandshake)
	})

	t.Run("negotiate refused", func(t *testing.T) {
		hub := signalrtest.NewServer(t)
		hub.SetRefuseConnections(true)

		_, err := NewClient(hub.HubURL(), Options{}, zerolog.Nop()).Dial(context.Background(), nil)

		assert.ErrorIs(t, err, ErrNegotiate)
	})

	t.Run("hub unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := NewClient(url+"/chathub", Options{SkipNegotiation: true}, zerolog.Nop()).Dial(context.Background(), nil)

		assert.Error(t, err)
	})

	t.Run("cancelled during handshake", func(t *testing.T) {
		release := make(chan struct{})
		silent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			upgrader := websocket.Upgrader{}
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer conn.Close()
			<-release
		}))
		defer silent.Close()
		defer close(release)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		started := time.Now()
		_, err := NewClient(silent.URL, Options{SkipNegotiation: true}, zerolog.Nop()).Dial(ctx, nil)

		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(started), 5*time.Second)
	})
}

func TestConn_Invoke(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		hub := signalrtest.NewServer(t)
		hub.SetSentiment(func(string) string { return "positive" })
		rec := &recorder{}

		conn := dial(t, hub, Options{}, rec.handle)

		err := conn.Invoke(context.Background(), "SendMessage", model.OutgoingMessage{Username: "Ana", Message: "hi"})
		require.NoError(t, err)

		assert.Equal(t, []model.OutgoingMessage{{Username: "Ana", Message: "hi"}}, hub.Received())

		require.Eventually(t, func() bool { return len(rec.all()) == 1 }, time.Second, 5*time.Millisecond)
		events := rec.all()
		assert.Equal(t, "ReceiveMessage", events[0].target)

		msg, err := model.ParseReceiveMessage(events[0].args)
		require.NoError(t, err)
		assert.Equal(t, model.NewChatMessage("Ana", "hi", "positive"), msg)
	})

	t.Run("hub error", func(t *testing.T) {
		hub := signalrtest.NewServer(t)
		hub.SetFailSends("database offline")

		conn := dial(t, hub, Options{}, func(string, []json.RawMessage) {})

		err := conn.Invoke(context.Background(), "SendMessage", model.OutgoingMessage{Username: "Ana", Message: "hi"})
		assert.ErrorIs(t, err, ErrInvocationFailed)
		assert.Contains(t, err.Error(), "database offline")
	})

	t.Run("unknown method", func(t *testing.T) {
		hub := signalrtest.NewServer(t)
		conn := dial(t, hub, Options{}, func(string, []json.RawMessage) {})

		err := conn.Invoke(context.Background(), "Nope")
		assert.ErrorIs(t, err, ErrInvocationFailed)
	})

	t.Run("after close", func(t *testing.T) {
		hub := signalrtest.NewServer(t)
		conn := dial(t, hub, Options{}, func(string, []json.RawMessage) {})
		require.NoError(t, conn.Close())

		err := conn.Invoke(context.Background(), "SendMessage", model.OutgoingMessage{})
		assert.ErrorIs(t, err, ErrConnectionLost)
	})

	t.Run("context cancelled", func(t *testing.T) {
		hub := signalrtest.NewServer(t)
		conn := dial(t, hub, Options{}, func(string, []json.RawMessage) {})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := conn.Invoke(ctx, "SendMessage", model.OutgoingMessage{Username: "Ana", Message: "hi"})
		if err != nil {
			assert.ErrorIs(t, err, context.Canceled)
		}
	})
}

func TestConn_Lifecycle(t *testing.T) {
	t.Run("broadcast reaches handler", func(t *testing.T) {
		hub := signalrtest.NewServer(t)
		rec := &recorder{}
		dial(t, hub, Options{}, rec.handle)
		require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

		hub.Broadcast("Bob", "first", "")
		hub.Broadcast("Bob", "second", "negative")

		require.Eventually(t, func() bool { return len(rec.all()) == 2 }, time.Second, 5*time.Millisecond)

		var got []model.ChatMessage
		for _, e := range rec.all() {
			assert.Equal(t, EventReceiveMessage, e.target)
			msg, err := model.ParseReceiveMessage(e.args)
			require.NoError(t, err)
			got = append(got, msg)
		}

		assert.ElementsMatch(t, []model.ChatMessage{
			{Sender: "Bob", Text: "first", Sentiment: model.SentimentNeutral},
			{Sender: "Bob", Text: "second", Sentiment: model.SentimentNegative},
		}, got)
	})

	t.Run("dropped by hub", func(t *testing.T) {
		hub := signalrtest.NewServer(t)
		conn := dial(t, hub, Options{}, func(string, []json.RawMessage) {})
		require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

		hub.DropAll()

		select {
		case <-conn.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("connection not reported lost")
		}
		assert.ErrorIs(t, conn.Err(), ErrConnectionLost)
	})

	t.Run("closed by hub", func(t *testing.T) {
		for _, allow := range []bool{true, false} {
			hub := signalrtest.NewServer(t)
			conn := dial(t, hub, Options{}, func(string, []json.RawMessage) {})
			require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

			hub.CloseAll("shutting down", allow)

			select {
			case <-conn.Done():
			case <-time.After(2 * time.Second):
				t.Fatal("connection not reported closed")
			}

			var closeErr *CloseError
			require.True(t, errors.As(conn.Err(), &closeErr))
			assert.Equal(t, allow, closeErr.AllowReconnect())
			assert.Equal(t, "shutting down", closeErr.Message)
		}
	})

	t.Run("server timeout", func(t *testing.T) {
		hub := signalrtest.NewServer(t)
		hub.SetPingPeriod(time.Hour)

		conn := dial(t, hub, Options{ServerTimeout: 100 * time.Millisecond}, func(string, []json.RawMessage) {})

		select {
		case <-conn.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("server timeout not detected")
		}
		assert.ErrorIs(t, conn.Err(), ErrConnectionLost)
	})

	t.Run("keep-alive holds the connection open", func(t *testing.T) {
		hub := signalrtest.NewServer(t)
		hub.SetPingPeriod(20 * time.Millisecond)

		conn := dial(t, hub, Options{ServerTimeout: 200 * time.Millisecond, KeepAliveInterval: 20 * time.Millisecond}, func(string, []json.RawMessage) {})

		select {
		case <-conn.Done():
			t.Fatalf("connection ended: %v", conn.Err())
		case <-time.After(500 * time.Millisecond):
		}
	})

	t.Run("no handler call after close", func(t *testing.T) {
		hub := signalrtest.NewServer(t)
		rec := &recorder{}
		conn := dial(t, hub, Options{}, rec.handle)
		require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

		require.NoError(t, conn.Close())
		require.NoError(t, conn.Close())
		assert.ErrorIs(t, conn.Err(), ErrClosed)

		before := len(rec.all())
		hub.Broadcast("Bob", "late", "")
		time.Sleep(50 * time.Millisecond)
		assert.Len(t, rec.all(), before)
		assert.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 5*time.Millisecond)
	})
}

func TestWatchedConnection(t *testing.T) {
	t.Run("close record split across reads", func(t *testing.T) {
		conn := newConn(nil, func() {}, zerolog.Nop())
		w := &watchedConnection{conn: conn}

		w.scan([]byte("{\"type\":6}\x1e{\"type\":7,\"err"))
		w.scan([]byte("or\":\"bye\",\"allowReconnect\":true}\x1e"))
		assert.Empty(t, w.pending)

		conn.lost(ErrConnectionLost)

		var closeErr *CloseError
		require.True(t, errors.As(conn.Err(), &closeErr))
		assert.True(t, closeErr.AllowReconnect())
		assert.Equal(t, "bye", closeErr.Message)
	})

	t.Run("ordinary records", func(t *testing.T) {
		conn := newConn(nil, func() {}, zerolog.Nop())
		w := &watchedConnection{conn: conn}

		w.scan([]byte("{}\x1e{\"type\":1,\"target\":\"ReceiveMessage\",\"arguments\":[]}\x1e{\"type\""))
		assert.Equal(t, []byte(`{"type"`), w.pending)

		conn.lost(ErrConnectionLost)
		assert.ErrorIs(t, conn.Err(), ErrConnectionLost)
	})

	t.Run("close wins over the hub close record", func(t *testing.T) {
		conn := newConn(nil, func() {}, zerolog.Nop())
		conn.hubClosed("bye", false)

		conn.lost(ErrClosed)
		assert.ErrorIs(t, conn.Err(), ErrClosed)
	})
}

func TestHelpers(t *testing.T) {
	t.Run("websocket url", func(t *testing.T) {
		tests := map[string]string{
			"http://localhost/chathub":       "ws://localhost/chathub",
			"https://localhost:7055/chathub": "wss://localhost:7055/chathub",
			"wss://example.com/hub?id=x":     "wss://example.com/hub?id=x",
		}
		for in, want := range tests {
			got, err := websocketURL(in)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}

		_, err := websocketURL("ftp://localhost/chathub")
		assert.Error(t, err)
	})

	t.Run("close error", func(t *testing.T) {
		err := &CloseError{Message: "bye"}
		assert.False(t, err.AllowReconnect())
		assert.Equal(t, "hub closed the connection: bye", err.Error())
	})

	t.Run("log adapter", func(t *testing.T) {
		var buf bytes.Buffer
		logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

		require.NoError(t, logAdapter{log: logger}.Log("level", "info", "event", "handshake", "dangling"))
		assert.Contains(t, buf.String(), `"event":"handshake"`)
		assert.Contains(t, buf.String(), `"level":"debug"`)
	})
}
