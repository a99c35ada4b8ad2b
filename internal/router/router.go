// Package router fans an event out to one, many, or all eligible
// recipients derived from a directory snapshot. It never holds the
// directory lock while sending: the caller takes a directory snapshot
// under the lock, hands it to router, and the lock is long released by
// the time any frame goes out.
package router

import (
	"github.com/pion/logging"

	"yappuccino/internal/directory"
	"yappuccino/internal/presence"
	"yappuccino/internal/protocol"
)

// Router holds nothing but a logger; every operation takes its recipient
// set as an argument so it never needs to touch the directory lock.
type Router struct {
	log logging.LeveledLogger
}

// New builds a Router. log may be nil.
func New(log logging.LeveledLogger) *Router {
	if log == nil {
		log = logging.NewDefaultLoggerFactory().NewLogger("router")
	}
	return &Router{log: log}
}

// SendTo delivers a binary frame to a single recipient, logging but not
// failing on error.
func (r *Router) SendTo(conn directory.Conn, frame []byte) {
	if conn == nil {
		return
	}
	if err := conn.SendBinary(frame); err != nil {
		r.log.Warnf("send failed: %v", err)
	}
}

// BroadcastText delivers a text frame to every connected (ACTIVE or BUSY)
// recipient in records. Recipients whose conn is not open are skipped.
func (r *Router) BroadcastText(records []directory.Record, text string) {
	for _, rec := range records {
		if rec.State != presence.Active && rec.State != presence.Busy {
			continue
		}
		if rec.Conn == nil || !rec.Conn.Open() {
			continue
		}
		if err := rec.Conn.SendText(text); err != nil {
			r.log.Warnf("broadcast text to %s failed: %v", rec.Name, err)
		}
	}
}

// BroadcastFrame delivers a pre-encoded binary frame to every connected
// recipient in records (any state other than DISCONNECTED).
func (r *Router) BroadcastFrame(records []directory.Record, frame []byte) {
	for _, rec := range records {
		if rec.State == presence.Disconnected {
			continue
		}
		if rec.Conn == nil || !rec.Conn.Open() {
			continue
		}
		if err := rec.Conn.SendBinary(frame); err != nil {
			r.log.Warnf("broadcast frame to %s failed: %v", rec.Name, err)
		}
	}
}

// BroadcastPresence emits USER_STATUS_CHANGED to every connected recipient.
func (r *Router) BroadcastPresence(records []directory.Record, name string, newState presence.State) {
	r.BroadcastFrame(records, protocol.EncodeUserStatusChanged(name, newState.Byte()))
}

// BroadcastJoined emits USER_REGISTERED to every connected recipient.
func (r *Router) BroadcastJoined(records []directory.Record, name, address string) {
	r.BroadcastFrame(records, protocol.EncodeUserRegistered(name, address))
}
