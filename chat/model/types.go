package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Sentiment is the hub's classification of a message.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// ParseSentiment normalizes a wire value. Empty and unrecognised values
// become SentimentNeutral.
func ParseSentiment(s string) Sentiment {
	switch Sentiment(strings.ToLower(strings.TrimSpace(s))) {
	case SentimentPositive:
		return SentimentPositive
	case SentimentNegative:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// ChatMessage represents one chat line
type ChatMessage struct {
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Sentiment Sentiment `json:"sentiment"`
}

// NewChatMessage builds a message, defaulting the sentiment to neutral.
func NewChatMessage(sender, text, sentiment string) ChatMessage {
	return ChatMessage{
		Sender:    sender,
		Text:      text,
		Sentiment: ParseSentiment(sentiment),
	}
}

// HistoryRecord is one element returned by the history endpoint
type HistoryRecord struct {
	Username  string  `json:"username"`
	Message   string  `json:"message"`
	Sentiment *string `json:"sentiment,omitempty"`
}

// ToChatMessage maps the record into a ChatMessage.
func (r HistoryRecord) ToChatMessage() ChatMessage {
	sentiment := ""
	if r.Sentiment != nil {
		sentiment = *r.Sentiment
	}
	return NewChatMessage(r.Username, r.Message, sentiment)
}

// OutgoingMessage is the payload of the SendMessage hub method
type OutgoingMessage struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// ParseReceiveMessage decodes the positional arguments of a ReceiveMessage
// event: (sender, message, sentiment?). A missing, null or non-string
// sentiment is neutral.
func ParseReceiveMessage(args []json.RawMessage) (ChatMessage, error) {
	if len(args) < 2 {
		return ChatMessage{}, fmt.Errorf("ReceiveMessage expects at least 2 arguments, got %d", len(args))
	}

	var sender, text string
	if err := json.Unmarshal(args[0], &sender); err != nil {
		return ChatMessage{}, fmt.Errorf("failed to decode sender: %w", err)
	}
	if err := json.Unmarshal(args[1], &text); err != nil {
		return ChatMessage{}, fmt.Errorf("failed to decode message: %w", err)
	}

	msg := ChatMessage{Sender: sender, Text: text, Sentiment: SentimentNeutral}
	if len(args) > 2 {
		// null decodes into a nil pointer; anything but a string is neutral
		var sentiment *string
		if err := json.Unmarshal(args[2], &sentiment); err == nil && sentiment != nil {
			msg.Sentiment = ParseSentiment(*sentiment)
		}
	}
	return msg, nil
}
