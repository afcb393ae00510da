package signalr

import "encoding/json"

// Hub events delivered to the Handler.
const EventReceiveMessage = "ReceiveMessage"

// receiver is bound by the library client: hub invocations are matched to
// its methods by name.
type receiver struct {
	conn *Conn
}

// ReceiveMessage is broadcast by the hub for every posted message. The
// arguments stay raw so the Handler decides how to read them.
func (r *receiver) ReceiveMessage(user, message, sentiment json.RawMessage) {
	r.conn.dispatch(EventReceiveMessage, []json.RawMessage{user, message, sentiment})
}
