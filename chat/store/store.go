// Package store holds the ordered, append-only sequence of chat messages
// shown to the user.
//
// Messages arrive from two places: a one-shot history seed fetched over
// HTTP at startup, and live events from the hub connection. Live messages
// are appended in arrival order. The history seed is placed ahead of any
// live message that arrived while it was loading; nothing is deduplicated
// or reordered beyond that.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/wricardo/hubchat/chat/model"
	"github.com/wricardo/hubchat/chat/observer"
)

var (
	ErrHistoryLoad     = errors.New("failed to load message history")
	ErrAlreadySeeded   = errors.New("message history already loaded")
	ErrNoHistorySource = errors.New("no history source configured")
)

// HistorySource fetches the existing messages
type HistorySource interface {
	FetchHistory(ctx context.Context) ([]model.HistoryRecord, error)
}

// Store is the in-memory message sequence
type Store struct {
	mu       sync.RWMutex
	messages []model.ChatMessage
	seeded   bool
	log      zerolog.Logger

	appended observer.Registry[model.ChatMessage]
	seed     observer.Registry[[]model.ChatMessage]
}

// New creates an empty store
func New(logger zerolog.Logger) *Store {
	return &Store{
		log: logger.With().Str("component", "store").Logger(),
	}
}

// Append pushes msg to the end of the sequence and notifies subscribers.
func (s *Store) Append(msg model.ChatMessage) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	s.appended.Notify(msg)
}

// LoadHistory fetches the history once and seeds the sequence with it.
// On failure the sequence is left untouched, the error matches
// ErrHistoryLoad and the load may be attempted again.
func (s *Store) LoadHistory(ctx context.Context, source HistorySource) error {
	if source == nil {
		return fmt.Errorf("%w: %w", ErrHistoryLoad, ErrNoHistorySource)
	}

	s.mu.RLock()
	seeded := s.seeded
	s.mu.RUnlock()
	if seeded {
		return ErrAlreadySeeded
	}

	records, err := source.FetchHistory(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHistoryLoad, err)
	}

	history := lo.Map(records, func(r model.HistoryRecord, _ int) model.ChatMessage {
		return r.ToChatMessage()
	})

	s.mu.Lock()
	if s.seeded {
		s.mu.Unlock()
		return ErrAlreadySeeded
	}
	live := len(s.messages)
	s.messages = append(append(make([]model.ChatMessage, 0, len(history)+live), history...), s.messages...)
	s.seeded = true
	s.mu.Unlock()

	s.log.Info().Int("history", len(history)).Int("live", live).Msg("Message history loaded")
	s.seed.Notify(history)
	return nil
}

// Messages returns a copy of the sequence
func (s *Store) Messages() []model.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

// Len returns the number of messages
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Seeded reports whether history has been loaded
func (s *Store) Seeded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seeded
}

// Subscribe is notified of every appended message.
func (s *Store) Subscribe(handler func(model.ChatMessage)) (unsubscribe func()) {
	return s.appended.Subscribe(handler)
}

// OnSeed is notified with the history records once they have loaded.
// Live messages that arrived meanwhile were already passed to Subscribe
// and are not repeated.
func (s *Store) OnSeed(handler func([]model.ChatMessage)) (unsubscribe func()) {
	return s.seed.Subscribe(handler)
}

func (s *Store) copyLocked() []model.ChatMessage {
	out := make([]model.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}
