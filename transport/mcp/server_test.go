package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wricardo/hubchat/chat/config"
	"github.com/wricardo/hubchat/chat/connection"
	"github.com/wricardo/hubchat/chat/model"
	"github.com/wricardo/hubchat/chat/service"
	"github.com/wricardo/hubchat/transport/signalr/signalrtest"
)

func newChat(t *testing.T, hub *signalrtest.Hub) service.ChatService {
	t.Helper()
	cfg := config.Default()
	cfg.BaseURL = hub.URL()
	cfg.ReconnectBase = time.Millisecond
	cfg.ReconnectMax = 5 * time.Millisecond

	chat, err := service.New(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { chat.Stop() })
	return chat
}

func call(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), name string, args map[string]interface{}) (string, bool) {
	t.Helper()

	request := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}

	result, err := handler(context.Background(), request)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)

	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text, result.IsError
}

func TestNewServer(t *testing.T) {
	hub := signalrtest.NewServer(t)
	s := NewServer(newChat(t, hub), "test", zerolog.Nop())

	require.NotNil(t, s.MCPServer())

	response := s.MCPServer().HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	data, err := json.Marshal(response)
	require.NoError(t, err)

	for _, name := range []string{"send_message", "list_messages", "connection_status", "set_username", "reconnect"} {
		assert.Contains(t, string(data), `"name":"`+name+`"`)
	}
}

func TestServer_SendMessage(t *testing.T) {
	t.Run("requires a username", func(t *testing.T) {
		hub := signalrtest.NewServer(t)
		chat := newChat(t, hub)
		require.NoError(t, chat.Start(context.Background()))
		s := NewServer(chat, "test", zerolog.Nop())

		text, isErr := call(t, s.handleSendMessage, "send_message", map[string]interface{}{"message": "hello"})

		assert.True(t, isErr)
		assert.Contains(t, text, "set_username")
		assert.Empty(t, hub.Received())
	})

	t.Run("requires a connection", func(t *testing.T) {
		hub := signalrtest.NewServer(t)
		chat := newChat(t, hub)
		require.NoError(t, chat.SetUsername("agent"))
		s := NewServer(chat, "test", zerolog.Nop())

		text, isErr := call(t, s.handleSendMessage, "send_message", map[string]interface{}{"message": "hello"})

		assert.True(t, isErr)
		assert.Contains(t, text, "Not connected")
	})

	t.Run("rejects empty text", func(t *testing.T) {
		hub := signalrtest.NewServer(t)
		chat := newChat(t, hub)
		require.NoError(t, chat.SetUsername("agent"))
		require.NoError(t, chat.Start(context.Background()))
		s := NewServer(chat, "test", zerolog.Nop())

		text, isErr := call(t, s.handleSendMessage, "send_message", map[string]interface{}{})

		assert.True(t, isErr)
		assert.Equal(t, "Message is empty", text)
	})

	t.Run("sends", func(t *testing.T) {
		hub := signalrtest.NewServer(t)
		chat := newChat(t, hub)
		s := NewServer(chat, "test", zerolog.Nop())
		require.NoError(t, chat.Start(context.Background()))

		text, isErr := call(t, s.handleSetUsername, "set_username", map[string]interface{}{"username": "agent"})
		require.False(t, isErr, text)

		text, isErr = call(t, s.handleSendMessage, "send_message", map[string]interface{}{"message": " hello room "})

		assert.False(t, isErr, text)
		assert.Equal(t, "Sent as agent: hello room", text)
		assert.Equal(t, []model.OutgoingMessage{{Username: "agent", Message: "hello room"}}, hub.Received())
	})
}

func TestServer_ListMessages(t *testing.T) {
	hub := signalrtest.NewServer(t)
	var history []model.HistoryRecord
	for i := 1; i <= 25; i++ {
		history = append(history, model.HistoryRecord{Username: "Bob", Message: fmt.Sprintf("message %d", i)})
	}
	hub.SetHistory(history)

	chat := newChat(t, hub)
	require.NoError(t, chat.SetUsername("Bob"))
	require.NoError(t, chat.Start(context.Background()))
	s := NewServer(chat, "test", zerolog.Nop())

	t.Run("default limit", func(t *testing.T) {
		text, isErr := call(t, s.handleListMessages, "list_messages", map[string]interface{}{})

		require.False(t, isErr)
		assert.Contains(t, text, "Messages (20 of 25)")
		assert.NotContains(t, text, "message 5\n")
		assert.Contains(t, text, "[neutral] Bob (you): message 25")
	})

	t.Run("explicit limit", func(t *testing.T) {
		text, isErr := call(t, s.handleListMessages, "list_messages", map[string]interface{}{"limit": float64(2)})

		require.False(t, isErr)
		lines := strings.Split(strings.TrimSpace(text), "\n")
		assert.Equal(t, []string{
			"Messages (2 of 25):",
			"",
			"[neutral] Bob (you): message 24",
			"[neutral] Bob (you): message 25",
		}, lines)
	})

	t.Run("all", func(t *testing.T) {
		text, _ := call(t, s.handleListMessages, "list_messages", map[string]interface{}{"limit": float64(0)})
		assert.Contains(t, text, "Messages (25 of 25)")
	})

	t.Run("negative limit", func(t *testing.T) {
		_, isErr := call(t, s.handleListMessages, "list_messages", map[string]interface{}{"limit": float64(-1)})
		assert.True(t, isErr)
	})
}

func TestServer_StatusAndReconnect(t *testing.T) {
	hub := signalrtest.NewServer(t)
	chat := newChat(t, hub)
	s := NewServer(chat, "test", zerolog.Nop())

	text, isErr := call(t, s.handleConnectionStatus, "connection_status", nil)
	require.False(t, isErr)
	assert.Contains(t, text, "Status: disconnected")
	assert.Contains(t, text, "Username: (not set)")

	hub.SetRefuseConnections(true)
	text, isErr = call(t, s.handleReconnect, "reconnect", nil)
	assert.True(t, isErr)
	assert.Contains(t, text, "Reconnect failed")
	assert.Equal(t, connection.StatusError, chat.Status())

	hub.SetRefuseConnections(false)
	text, isErr = call(t, s.handleReconnect, "reconnect", nil)
	require.False(t, isErr, text)
	assert.Contains(t, text, "Status: connected")
}

func TestServer_SetUsernameOnce(t *testing.T) {
	hub := signalrtest.NewServer(t)
	s := NewServer(newChat(t, hub), "test", zerolog.Nop())

	_, isErr := call(t, s.handleSetUsername, "set_username", map[string]interface{}{"username": "  "})
	assert.True(t, isErr)

	text, isErr := call(t, s.handleSetUsername, "set_username", map[string]interface{}{"username": "agent"})
	require.False(t, isErr)
	assert.Equal(t, "Username set to agent", text)

	text, isErr = call(t, s.handleSetUsername, "set_username", map[string]interface{}{"username": "other"})
	assert.True(t, isErr)
	assert.Contains(t, text, "already set to agent")
}

func TestDescribeSendError(t *testing.T) {
	assert.Equal(t, "Message not sent: boom", describeSendError(errors.New("boom")))
	assert.Contains(t, describeSendError(fmt.Errorf("wrapped: %w", connection.ErrConnectionUnavailable)), "Not connected")
}
