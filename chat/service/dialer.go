package service

import (
	"context"

	"github.com/wricardo/hubchat/chat/connection"
	"github.com/wricardo/hubchat/transport/signalr"
)

// hubDialer adapts a SignalR client to connection.Dialer
type hubDialer struct {
	client *signalr.Client
}

// NewHubDialer returns a dialer that opens SignalR connections with client
func NewHubDialer(client *signalr.Client) connection.Dialer {
	return hubDialer{client: client}
}

func (d hubDialer) Dial(ctx context.Context, handler connection.Handler) (connection.Conn, error) {
	conn, err := d.client.Dial(ctx, signalr.Handler(handler))
	if err != nil {
		// A nil *signalr.Conn must not become a non-nil interface.
		return nil, err
	}
	return conn, nil
}
