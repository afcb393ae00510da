package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/wricardo/hubchat/chat/connection"
	"github.com/wricardo/hubchat/chat/gateway"
	"github.com/wricardo/hubchat/chat/service"
	"github.com/wricardo/hubchat/chat/session"
)

// Commands understood by the input loop.
const (
	CommandQuit      = "/quit"
	CommandReconnect = "/reconnect"
	CommandStatus    = "/status"
	CommandHelp      = "/help"
)

// ErrInputClosed is returned when input ends before a username was entered.
var ErrInputClosed = errors.New("input closed")

// UI drives a chat service from a terminal
type UI struct {
	chat     service.ChatService
	renderer *Renderer
	lines    <-chan string
	log      zerolog.Logger
}

// New creates a UI reading lines from in and writing to out.
func New(chat service.ChatService, in io.Reader, out io.Writer, colors bool, logger zerolog.Logger) *UI {
	return &UI{
		chat:     chat,
		renderer: NewRenderer(out, chat.IsMine, colors),
		lines:    readLines(in),
		log:      logger.With().Str("component", "terminal").Logger(),
	}
}

// Renderer returns the UI's renderer
func (u *UI) Renderer() *Renderer {
	return u.renderer
}

// Attach subscribes the renderer to messages, history and status changes.
func (u *UI) Attach() (detach func()) {
	unsubs := []func(){
		u.chat.OnHistory(u.renderer.History),
		u.chat.OnMessage(u.renderer.Message),
		u.chat.OnStatusChange(u.renderer.Status),
	}
	return func() {
		for _, unsubscribe := range unsubs {
			unsubscribe()
		}
	}
}

// PromptUsername asks for a display name until a valid one is entered. It
// returns immediately when the session already has one.
func (u *UI) PromptUsername(ctx context.Context) error {
	for u.chat.Username() == "" {
		u.renderer.Print("Enter your name: ")

		line, err := u.next(ctx)
		if err != nil {
			return err
		}

		if err := u.chat.SetUsername(line); err != nil {
			if errors.Is(err, session.ErrEmptyUsername) {
				u.renderer.Notice("Name cannot be empty")
				continue
			}
			return err
		}
	}

	u.renderer.Notice(fmt.Sprintf("Chatting as %s. Type %s for commands.", u.chat.Username(), CommandHelp))
	return nil
}

// Run reads lines and sends them until input ends, /quit is typed or ctx
// is cancelled.
func (u *UI) Run(ctx context.Context) error {
	for {
		line, err := u.next(ctx)
		if err != nil {
			if errors.Is(err, ErrInputClosed) {
				return nil
			}
			return err
		}

		switch strings.TrimSpace(line) {
		case "":
			continue
		case CommandQuit:
			return nil
		case CommandReconnect:
			u.reconnect(ctx)
		case CommandStatus:
			u.status()
		case CommandHelp:
			u.help()
		default:
			u.submit(ctx, line)
		}
	}
}

func (u *UI) submit(ctx context.Context, line string) {
	err := u.chat.Submit(ctx, line)
	if err == nil {
		return
	}

	u.log.Debug().Err(err).Msg("Submit failed")
	switch {
	case errors.Is(err, gateway.ErrUsernameUnset):
		u.renderer.Error("Set a name before sending")
	case errors.Is(err, connection.ErrConnectionUnavailable):
		u.renderer.Error(fmt.Sprintf("Not connected (%s). Message not sent, type %s to try again.", u.chat.Status(), CommandReconnect))
	default:
		u.renderer.Error(fmt.Sprintf("Message not sent: %v", err))
	}
}

func (u *UI) reconnect(ctx context.Context) {
	if err := u.chat.Reconnect(ctx); err != nil {
		u.renderer.Error(fmt.Sprintf("Reconnect failed: %v", err))
	}
}

func (u *UI) status() {
	u.renderer.Notice(fmt.Sprintf("Status: %s, user: %s, messages: %d",
		u.chat.Status(), u.chat.Username(), len(u.chat.Messages())))
}

func (u *UI) help() {
	u.renderer.Notice(strings.Join([]string{
		"Type a message and press enter to send it.",
		CommandStatus + "     show the connection status",
		CommandReconnect + "  connect again",
		CommandQuit + "       leave the chat",
	}, "\n"))
}

func (u *UI) next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-u.lines:
		if !ok {
			return "", ErrInputClosed
		}
		return line, nil
	}
}

// readLines feeds lines from r into a channel that is closed at EOF. The
// reader cannot be interrupted, so the goroutine ends only with the input.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}
