package service

import (
	"context"

	"github.com/wricardo/hubchat/chat/connection"
	"github.com/wricardo/hubchat/chat/model"
)

// ChatService defines every operation of the chat client
type ChatService interface {
	// Lifecycle
	Start(ctx context.Context) error
	Stop() error
	Reconnect(ctx context.Context) error

	// Messaging
	Submit(ctx context.Context, text string) error
	Messages() []model.ChatMessage
	OnMessage(handler func(model.ChatMessage)) (unsubscribe func())
	OnHistory(handler func([]model.ChatMessage)) (unsubscribe func())

	// Identity
	SetUsername(name string) error
	Username() string
	IsMine(sender string) bool

	// Connection
	Status() connection.Status
	OnStatusChange(handler func(connection.Status)) (unsubscribe func())
}
