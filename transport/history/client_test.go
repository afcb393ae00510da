package history

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wricardo/hubchat/chat/model"
	"github.com/wricardo/hubchat/transport/signalr/signalrtest"
)

func TestClient_FetchHistory(t *testing.T) {
	t.Run("decodes records", func(t *testing.T) {
		var gotAccept, gotPath string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAccept = r.Header.Get("Accept")
			gotPath = r.URL.Path
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`[
				{"id": 1, "username": "Ana", "message": "hello", "sentiment": "positive"},
				{"id": 2, "username": "Bob", "message": "meh", "sentiment": null},
				{"id": 3, "username": "Cy", "message": "ok"}
			]`))
		}))
		defer server.Close()

		records, err := NewClient(server.URL+"/", nil, zerolog.Nop()).FetchHistory(context.Background())
		require.NoError(t, err)

		assert.Equal(t, "application/json", gotAccept)
		assert.Equal(t, Path, gotPath)
		require.Len(t, records, 3)
		assert.Equal(t, model.SentimentPositive, records[0].ToChatMessage().Sentiment)
		assert.Nil(t, records[1].Sentiment)
		assert.Equal(t, model.ChatMessage{Sender: "Cy", Text: "ok", Sentiment: model.SentimentNeutral}, records[2].ToChatMessage())
	})

	t.Run("empty history", func(t *testing.T) {
		hub := signalrtest.NewServer(t)

		records, err := NewClient(hub.URL(), nil, zerolog.Nop()).FetchHistory(context.Background())
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("from fake hub", func(t *testing.T) {
		hub := signalrtest.NewServer(t)
		hub.SetHistory([]model.HistoryRecord{{Username: "Ana", Message: "hi"}})

		records, err := NewClient(hub.URL(), nil, zerolog.Nop()).FetchHistory(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []model.HistoryRecord{{Username: "Ana", Message: "hi"}}, records)
	})

	t.Run("server error", func(t *testing.T) {
		hub := signalrtest.NewServer(t)
		hub.SetFailHistory(true)

		_, err := NewClient(hub.URL(), nil, zerolog.Nop()).FetchHistory(context.Background())
		assert.ErrorIs(t, err, ErrStatus)
		assert.Contains(t, err.Error(), "500")
	})

	t.Run("malformed body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"not": "a list"`))
		}))
		defer server.Close()

		_, err := NewClient(server.URL, nil, zerolog.Nop()).FetchHistory(context.Background())
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrStatus)
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
		}))
		defer server.Close()
		defer close(release)

		client := NewClient(server.URL, &http.Client{Timeout: 50 * time.Millisecond}, zerolog.Nop())
		_, err := client.FetchHistory(context.Background())
		assert.Error(t, err)
	})

	t.Run("unreachable", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		_, err := NewClient(url, nil, zerolog.Nop()).FetchHistory(context.Background())
		assert.Error(t, err)
	})
}
