// Package session provides the session-scoped identity of the chat client.
//
// The session package implements:
//   - The display name (username) of the person chatting
//   - Set-once semantics for the username within a session
//   - Change notification through subscriptions instead of polling
//   - Pluggable persistence of the username under the "username" key
//
// Core Types:
//
// Context holds the username. It is created once, injected into the
// components that need the identity (send gateway, renderer) and updated
// through a single setter.
//
// Persistence stores session values by key. MemoryPersistence keeps them
// for the lifetime of the process; FilePersistence writes one JSON file per
// key so a session can span restarts of the terminal client.
//
// Usage:
//
//	sess, err := session.NewContext(session.NewMemoryPersistence())
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	unsubscribe := sess.Subscribe(func(name string) {
//		fmt.Println("chatting as", name)
//	})
//	defer unsubscribe()
//
//	if err := sess.SetUsername("Ana"); err != nil {
//		log.Fatal(err)
//	}
//
// Concurrency:
//
// Context and both persistence implementations are safe for concurrent use.
package session
