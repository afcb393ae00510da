package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/wricardo/hubchat/chat/observer"
)

// UsernameKey is the persistence key of the username
const UsernameKey = "username"

var (
	ErrEmptyUsername      = errors.New("username cannot be empty")
	ErrUsernameAlreadySet = errors.New("username already set for this session")
)

// Context is the session identity
type Context struct {
	mu          sync.RWMutex
	username    string
	persistence Persistence
	changes     observer.Registry[string]
}

// NewContext creates a session context, restoring a previously saved
// username from persistence.
func NewContext(persistence Persistence) (*Context, error) {
	if persistence == nil {
		persistence = NewMemoryPersistence()
	}

	c := &Context{persistence: persistence}

	if persistence.Exists(UsernameKey) {
		name, err := persistence.Load(UsernameKey)
		if err != nil {
			return nil, fmt.Errorf("failed to restore username: %w", err)
		}
		c.username = strings.TrimSpace(name)
	}

	return c, nil
}

// Username returns the current username, empty when unset
func (c *Context) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

// HasUsername reports whether a username is set
func (c *Context) HasUsername() bool {
	return c.Username() != ""
}

// SetUsername sets the username once per session. Setting the same name
// again is a no-op; a different name fails with ErrUsernameAlreadySet.
func (c *Context) SetUsername(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyUsername
	}

	c.mu.Lock()
	if c.username == name {
		c.mu.Unlock()
		return nil
	}
	if c.username != "" {
		c.mu.Unlock()
		return ErrUsernameAlreadySet
	}

	if err := c.persistence.Save(UsernameKey, name); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to persist username: %w", err)
	}
	c.username = name
	c.mu.Unlock()

	c.changes.Notify(name)
	return nil
}

// IsMine reports whether sender is the session's username (value equality).
func (c *Context) IsMine(sender string) bool {
	name := c.Username()
	return name != "" && name == sender
}

// Subscribe is notified when the username is set.
func (c *Context) Subscribe(handler func(username string)) (unsubscribe func()) {
	return c.changes.Subscribe(handler)
}

// Clear forgets the username and removes it from persistence, ending the session
func (c *Context) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.username = ""
	if c.persistence.Exists(UsernameKey) {
		if err := c.persistence.Delete(UsernameKey); err != nil {
			return fmt.Errorf("failed to delete persisted username: %w", err)
		}
	}
	return nil
}
