package signalr

import (
	"bytes"
	"encoding/json"
	"sync"

	core "github.com/philippseith/signalr"
	"github.com/pkg/errors"
)

const (
	recordSeparator = 0x1e
	typeClose       = 7
)

type closeMessage struct {
	Type           int    `json:"type"`
	Error          string `json:"error"`
	AllowReconnect bool   `json:"allowReconnect"`
}

// watchedConnection passes the hub stream through to the library client
// and notes Close messages, whose allowReconnect flag the client does not
// report. A failed read ends the Conn.
type watchedConnection struct {
	core.Connection
	conn *Conn

	mu      sync.Mutex
	pending []byte
}

func (w *watchedConnection) Read(p []byte) (int, error) {
	n, err := w.Connection.Read(p)
	if n > 0 {
		w.scan(p[:n])
	}
	if err != nil && !isTimeout(err) {
		w.conn.lost(errors.Wrap(ErrConnectionLost, err.Error()))
	}
	return n, err
}

// scan splits data into records, keeping a trailing partial record for
// the next read.
func (w *watchedConnection) scan(data []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = append(w.pending, data...)
	for {
		i := bytes.IndexByte(w.pending, recordSeparator)
		if i < 0 {
			break
		}
		record := w.pending[:i]
		w.pending = w.pending[i+1:]

		var msg closeMessage
		if json.Unmarshal(record, &msg) == nil && msg.Type == typeClose {
			w.conn.hubClosed(msg.Error, msg.AllowReconnect)
		}
	}
	if len(w.pending) == 0 {
		w.pending = nil
	}
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
