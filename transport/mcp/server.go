package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/wricardo/hubchat/chat/connection"
	"github.com/wricardo/hubchat/chat/gateway"
	"github.com/wricardo/hubchat/chat/model"
	"github.com/wricardo/hubchat/chat/service"
	"github.com/wricardo/hubchat/chat/session"
)

const defaultListLimit = 20

// Server serves chat tools over MCP
type Server struct {
	chat      service.ChatService
	mcpServer *server.MCPServer
	log       zerolog.Logger
}

// NewServer creates an MCP server backed by chat
func NewServer(chat service.ChatService, version string, logger zerolog.Logger) *Server {
	s := &Server{
		chat: chat,
		log:  logger.With().Str("component", "mcp").Logger(),
	}

	s.initMCPServer(version)
	return s
}

// initMCPServer initializes the MCP server with all tools
func (s *Server) initMCPServer(version string) {
	s.mcpServer = server.NewMCPServer(
		"hubchat",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions(`hubchat - realtime chat over a SignalR hub

You are connected to a shared chat room. Every participant sees every message.

AVAILABLE TOOLS:
- set_username: Choose your display name (required once before sending)
- send_message: Send a message to the room
- list_messages: Read the most recent messages
- connection_status: Check whether the hub connection is up
- reconnect: Reconnect after the connection was lost or gave up

Messages you sent are marked "(you)". Each message carries the sentiment the
service assigned to it.`),
	)

	s.registerTools()
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "send_message",
		Description: "Send a chat message as the session user",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"message": map[string]interface{}{
					"type":        "string",
					"description": "Message text",
				},
			},
			Required: []string{"message"},
		},
	}, s.handleSendMessage)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "list_messages",
		Description: "List the most recent chat messages, oldest first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": fmt.Sprintf("Maximum number of messages (default %d, 0 for all)", defaultListLimit),
				},
			},
		},
	}, s.handleListMessages)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "connection_status",
		Description: "Get the hub connection status and the session username",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.handleConnectionStatus)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "set_username",
		Description: "Set the display name for this session. It can only be set once.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"username": map[string]interface{}{
					"type":        "string",
					"description": "Display name",
				},
			},
			Required: []string{"username"},
		},
	}, s.handleSetUsername)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "reconnect",
		Description: "Drop the current hub connection and connect again",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.handleReconnect)
}

// MCPServer returns the underlying MCP server for serving
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves the tools on stdin and stdout until stdin closes
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// Tool handlers

func (s *Server) handleSendMessage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	message, _ := args["message"].(string)

	if err := s.chat.Submit(ctx, message); err != nil {
		s.log.Debug().Err(err).Msg("send_message failed")
		return mcp.NewToolResultError(describeSendError(err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Sent as %s: %s", s.chat.Username(), strings.TrimSpace(message))), nil
}

func (s *Server) handleListMessages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})

	limit := defaultListLimit
	if l, ok := args["limit"].(float64); ok {
		limit = int(l)
	}
	if limit < 0 {
		return mcp.NewToolResultError("limit must not be negative"), nil
	}

	messages := s.chat.Messages()
	total := len(messages)
	if limit > 0 {
		messages = lo.Subset(messages, -limit, uint(limit))
	}

	return mcp.NewToolResultText(s.formatMessages(messages, total)), nil
}

func (s *Server) handleConnectionStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(s.formatStatus()), nil
}

func (s *Server) handleSetUsername(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	username, _ := args["username"].(string)

	if err := s.chat.SetUsername(username); err != nil {
		if errors.Is(err, session.ErrUsernameAlreadySet) {
			return mcp.NewToolResultError(fmt.Sprintf("Username is already set to %s for this session", s.chat.Username())), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Username set to %s", s.chat.Username())), nil
}

func (s *Server) handleReconnect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.chat.Reconnect(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Reconnect failed: %v", err)), nil
	}
	return mcp.NewToolResultText(s.formatStatus()), nil
}

func describeSendError(err error) string {
	switch {
	case errors.Is(err, gateway.ErrEmptyText):
		return "Message is empty"
	case errors.Is(err, gateway.ErrUsernameUnset):
		return "Set a username with set_username before sending"
	case errors.Is(err, connection.ErrConnectionUnavailable):
		return "Not connected to the chat hub. Check connection_status or use reconnect."
	default:
		return fmt.Sprintf("Message not sent: %v", err)
	}
}

func (s *Server) formatMessages(messages []model.ChatMessage, total int) string {
	if total == 0 {
		return "No messages yet"
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Messages (%d of %d):\n\n", len(messages), total))
	for _, m := range messages {
		mine := ""
		if s.chat.IsMine(m.Sender) {
			mine = " (you)"
		}
		result.WriteString(fmt.Sprintf("[%s] %s%s: %s\n", m.Sentiment, m.Sender, mine, m.Text))
	}
	return result.String()
}

func (s *Server) formatStatus() string {
	username := s.chat.Username()
	if username == "" {
		username = "(not set)"
	}
	return fmt.Sprintf("Status: %s\nUsername: %s\nMessages: %d\n",
		s.chat.Status(), username, len(s.chat.Messages()))
}
