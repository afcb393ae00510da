// Package model defines the values exchanged between the chat client
// components and the remote hub.
//
// Core Types:
//
// ChatMessage is one rendered chat line. It is a plain value: once it has
// been appended to the message store it is never mutated or removed.
//
// Sentiment classifies a message as positive, negative or neutral. The hub
// computes it; when the wire payload omits it the message is neutral.
//
// Wire Types:
//
// HistoryRecord mirrors one element of the history endpoint response and
// OutgoingMessage is the payload of the hub's SendMessage invocation:
//
//	GET /api/ChatMessage  -> [{"username":"Ana","message":"hi","sentiment":"positive"}]
//	SendMessage           <- {"username":"Ana","message":"hi"}
//	ReceiveMessage        -> ("Ana", "hi", "positive")
package model
