// Package mcp exposes a running chat client as a Model Context Protocol
// server, so an AI agent can take part in the chat.
//
// MCP Tools:
//
// The package exposes the following tools:
//   - send_message: send a message as the session user
//   - list_messages: show the most recent messages, optionally limited
//   - connection_status: report the hub connection status and username
//   - set_username: choose the display name, once per session
//   - reconnect: drop the current hub connection and connect again
//
// Failures such as sending while disconnected come back as tool errors
// with a readable message, never as protocol errors.
//
// Usage:
//
//	srv := mcp.NewServer(chatService, logger)
//	if err := srv.ServeStdio(); err != nil {
//		log.Fatal(err)
//	}
//
// Stdout carries the protocol in stdio mode, so logging must go to stderr.
package mcp
