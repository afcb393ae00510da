// Package gateway is the single choke point through which user-authored
// text becomes an outbound hub call.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/wricardo/hubchat/chat/connection"
	"github.com/wricardo/hubchat/chat/model"
)

var (
	ErrPrecondition  = errors.New("cannot send message")
	ErrEmptyText     = fmt.Errorf("%w: message is empty", ErrPrecondition)
	ErrUsernameUnset = fmt.Errorf("%w: username is not set", ErrPrecondition)
)

// Sender forwards messages over the hub connection
type Sender interface {
	Status() connection.Status
	Send(ctx context.Context, msg model.OutgoingMessage) error
}

// Identity supplies the session username
type Identity interface {
	Username() string
}

// Gateway validates and forwards outgoing messages
type Gateway struct {
	sender   Sender
	identity Identity
	log      zerolog.Logger
}

// New creates a gateway
func New(sender Sender, identity Identity, logger zerolog.Logger) *Gateway {
	return &Gateway{
		sender:   sender,
		identity: identity,
		log:      logger.With().Str("component", "gateway").Logger(),
	}
}

// Submit trims text and sends it as the session user. Checks run in order:
// empty text (ErrEmptyText), unset username (ErrUsernameUnset), connection
// not connected (connection.ErrConnectionUnavailable). Send failures are
// returned unmodified; nothing is retried or queued.
func (g *Gateway) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}

	username := strings.TrimSpace(g.identity.Username())
	if username == "" {
		return ErrUsernameUnset
	}

	if status := g.sender.Status(); status != connection.StatusConnected {
		return fmt.Errorf("%w (status %s)", connection.ErrConnectionUnavailable, status)
	}

	msg := model.OutgoingMessage{Username: username, Message: text}
	if err := g.sender.Send(ctx, msg); err != nil {
		g.log.Warn().Err(err).Msg("Message not sent")
		return err
	}

	g.log.Debug().Int("length", len(text)).Msg("Message sent")
	return nil
}
