// Package signalr connects to an ASP.NET Core SignalR chat hub.
//
// The hub protocol itself (negotiation, the JSON handshake, invocations,
// keep-alive pings and the server timeout) is handled by
// github.com/philippseith/signalr. This package adds what the chat client
// needs on top of it:
//   - a direct WebSocket dial when negotiation is skipped
//   - single-use connections, so reconnecting stays with the caller
//   - Close messages surfaced as *CloseError, including whether the hub
//     allows reconnecting
//   - a guarantee that no Handler call happens after Close returns
//
// Usage:
//
//	client := signalr.NewClient("https://localhost:7055/chathub", signalr.Options{}, logger)
//	conn, err := client.Dial(ctx, func(target string, args []json.RawMessage) {
//		// ReceiveMessage(user, message, sentiment)
//	})
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//
//	err = conn.Invoke(ctx, "SendMessage", payload)
//
// A Conn is single use. When the hub goes away Done is closed and Err
// reports why; reconnecting means dialing a new Conn.
package signalr
