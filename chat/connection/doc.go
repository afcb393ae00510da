// Package connection owns the lifecycle of the realtime connection to the
// chat hub.
//
// The Manager tracks a single Status and moves it through a small state
// machine:
//
//	disconnected --Start--> connecting --handshake ok--> connected
//	connecting   --handshake failed--> error
//	connected    --transport drop--> reconnecting
//	reconnecting --attempt ok--> connected
//	reconnecting --attempts exhausted or fatal close--> disconnected
//	any          --Stop--> disconnected
//
// Start is only accepted from disconnected or error, so the inbound handler
// can never be registered twice. The initial connection is not retried:
// reconnection only applies to connections that were established and then
// dropped.
//
// Reconnect Policy:
//
// The first attempt after a drop fires immediately; attempt n >= 2 waits
// min(base * 2^(n-2), max). With the defaults (base 1s, max 30s) attempts
// 1..5 wait 0s, 1s, 2s, 4s, 8s.
//
// Observers:
//
// OnMessage and OnStatusChange return an unsubscribe function. Message
// handlers run on the connection's read goroutine in the order the hub
// delivered the events. Handlers must not call Stop synchronously: Stop
// waits for the goroutines that run them.
//
// Usage:
//
//	manager := connection.NewManager(dialer, connection.DefaultRetryPolicy(), logger)
//	unsubscribe := manager.OnMessage(store.Append)
//	defer unsubscribe()
//
//	if err := manager.Start(ctx); err != nil {
//		// errors.Is(err, connection.ErrHandshake)
//	}
//	defer manager.Stop()
package connection
