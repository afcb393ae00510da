// Package terminal is the line-oriented terminal front end of the chat
// client: it renders messages and connection banners, prompts for a
// username and turns typed lines into sends.
package terminal

import (
	"fmt"
	"io"
	"sync"

	"github.com/gookit/color"
	"github.com/wricardo/hubchat/chat/connection"
	"github.com/wricardo/hubchat/chat/model"
)

var (
	styleMine     = color.New(color.FgGreen, color.OpBold)
	styleOther    = color.New(color.FgCyan)
	stylePositive = color.New(color.FgGreen)
	styleNegative = color.New(color.FgRed)
	styleNeutral  = color.New(color.FgGray)
	styleBanner   = color.New(color.BgYellow, color.FgBlack)
	styleError    = color.New(color.BgRed, color.FgWhite)
	styleNotice   = color.New(color.FgYellow)
	styleInfo     = color.New(color.FgGray)
)

// Renderer writes chat output. It is safe for concurrent use; inbound
// messages arrive on the connection goroutine while the input loop writes
// notices.
type Renderer struct {
	mu     sync.Mutex
	out    io.Writer
	isMine func(sender string) bool
	colors bool
}

// NewRenderer creates a renderer. isMine decides which messages are the
// user's own.
func NewRenderer(out io.Writer, isMine func(sender string) bool, colors bool) *Renderer {
	return &Renderer{out: out, isMine: isMine, colors: colors}
}

// Message prints one chat message
func (r *Renderer) Message(m model.ChatMessage) {
	r.println(r.formatMessage(m))
}

// History prints the seeded history
func (r *Renderer) History(messages []model.ChatMessage) {
	if len(messages) == 0 {
		r.println(r.paint(styleInfo, "No earlier messages"))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, r.paint(styleInfo, fmt.Sprintf("--- %d earlier messages ---", len(messages))))
	for _, m := range messages {
		fmt.Fprintln(r.out, r.formatMessage(m))
	}
	fmt.Fprintln(r.out, r.paint(styleInfo, "---"))
}

// Status prints the banner for a connection status. Connected has no
// banner, only a short notice that the banners no longer apply.
func (r *Renderer) Status(s connection.Status) {
	text := Banner(s)
	if text == "" {
		r.println(r.paint(styleInfo, "Connected to chat"))
		return
	}
	style := styleBanner
	if s == connection.StatusError {
		style = styleError
	}
	r.println(r.paint(style, " "+text+" "))
}

// Notice prints a user facing notice
func (r *Renderer) Notice(text string) {
	r.println(r.paint(styleNotice, text))
}

// Error prints a failed action
func (r *Renderer) Error(text string) {
	r.println(r.paint(styleError, " "+text+" "))
}

// Print writes text without styling
func (r *Renderer) Print(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprint(r.out, text)
}

// Banner is the banner text shown for status, empty for connected.
func Banner(s connection.Status) string {
	switch s {
	case connection.StatusConnecting:
		return "Connecting..."
	case connection.StatusReconnecting:
		return "Reconnecting..."
	case connection.StatusDisconnected:
		return "Disconnected from chat"
	case connection.StatusError:
		return "Chat connection error"
	}
	return ""
}

func (r *Renderer) formatMessage(m model.ChatMessage) string {
	sender := r.paint(styleOther, m.Sender)
	prefix := "  "
	if r.isMine != nil && r.isMine(m.Sender) {
		sender = r.paint(styleMine, m.Sender+" (you)")
		prefix = "> "
	}
	return fmt.Sprintf("%s%s %s: %s", prefix, r.sentimentMarker(m.Sentiment), sender, m.Text)
}

func (r *Renderer) sentimentMarker(s model.Sentiment) string {
	switch s {
	case model.SentimentPositive:
		return r.paint(stylePositive, "[+]")
	case model.SentimentNegative:
		return r.paint(styleNegative, "[-]")
	}
	return r.paint(styleNeutral, "[~]")
}

func (r *Renderer) paint(style color.Style, text string) string {
	if !r.colors {
		return text
	}
	return style.Render(text)
}

func (r *Renderer) println(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, line)
}
