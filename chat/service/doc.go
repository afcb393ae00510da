// Package service provides the chat container: one object that owns the
// connection manager, the message store, the session identity and the
// send gateway, and wires them together.
//
// Inbound messages flow from the connection manager into the store;
// consumers observe the store, never the connection directly. Outgoing
// text goes through the gateway, which enforces the username and
// connection preconditions.
//
// Usage:
//
//	svc, err := service.New(cfg, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	svc.OnStatusChange(renderStatus)
//	svc.OnMessage(renderMessage)
//
//	// History is fetched alongside the connection; a failed fetch is
//	// logged and the chat starts empty.
//	if err := svc.Start(ctx); err != nil {
//		// handshake failed, status is connection.StatusError
//	}
//	defer svc.Stop()
//
//	err = svc.Submit(ctx, "hello")
package service
