// Package session implements the per-connection lifecycle: admission has
// already validated and handed off an accepted name; Session owns the
// receive loop, frame dispatch, directory updates, responses and
// activity-touch for that one connection, per spec.md §4.5.
package session

import (
	"fmt"
	"strings"

	"github.com/pion/logging"

	"yappuccino/internal/directory"
	"yappuccino/internal/history"
	"yappuccino/internal/presence"
	"yappuccino/internal/protocol"
	"yappuccino/internal/router"
)

const publicTarget = "~"

const welcomeText = "¡Bienvenido a YaPPuchino!"

// Server bundles the shared collaborators every Session needs: the single
// directory, router, and history stores for the whole process.
type Server struct {
	Directory *directory.Directory
	Router    *router.Router
	Public    *history.Public
	Private   *history.Private
	Log       logging.LeveledLogger
}

// Session is the live per-connection handler and its associated name.
type Session struct {
	srv  *Server
	conn Conn
	name string
	log  logging.LeveledLogger
}

// New builds a Session for an already-admitted name. It does not touch
// the directory; call Enter to do that.
func New(srv *Server, conn Conn, name string) *Session {
	log := srv.Log
	if log == nil {
		log = logging.NewDefaultLoggerFactory().NewLogger("session")
	}
	return &Session{srv: srv, conn: conn, name: name, log: log}
}

// Run drives the full lifecycle: Enter, receive loop until close, Exit.
// Once Enter has admitted the user, Exit runs exactly once when the loop
// ends. If Enter refuses the name, Run returns without calling Exit, so the
// live session that holds the name is left untouched.
func (s *Session) Run() {
	if !s.Enter() {
		return
	}
	defer s.Exit()
	s.loop()
}

// Enter upserts the directory entry, sends the welcome text, announces
// the join, and broadcasts the effective ACTIVE presence. It reports false,
// after closing this connection, when the directory refuses the upsert.
func (s *Session) Enter() bool {
	rec, _, ok := s.srv.Directory.UpsertOnJoin(s.name, s.conn, s.conn.Address())
	if !ok {
		s.log.Errorf("conn %s: admission raced a live session for %s, closing", s.conn.ID(), s.name)
		s.conn.Close()
		return false
	}
	_ = s.conn.SendText(welcomeText)

	connected := s.srv.Directory.SnapshotConnected()
	s.srv.Router.BroadcastJoined(connected, s.name, rec.Address)
	s.srv.Router.BroadcastText(connected, fmt.Sprintf("Usuario %s se ha unido.", s.name))

	if _, changed := s.srv.Directory.SetState(s.name, presence.Active, true); changed {
		s.srv.Router.BroadcastPresence(s.srv.Directory.SnapshotConnected(), s.name, presence.Active)
	}
	s.srv.Directory.Touch(s.name)
	return true
}

// Exit marks the user disconnected and announces the departure exactly
// once, regardless of whether the loop ended cleanly or on error.
func (s *Session) Exit() {
	s.srv.Directory.MarkDisconnected(s.name)
	connected := s.srv.Directory.SnapshotConnected()
	// The departing user is already DISCONNECTED and therefore excluded
	// from connected, but every remaining peer still needs to learn it.
	s.srv.Router.BroadcastPresence(connected, s.name, presence.Disconnected)
	s.srv.Router.BroadcastText(connected, fmt.Sprintf("Usuario %s se ha desconectado.", s.name))
	s.conn.Close()
}

func (s *Session) loop() {
	for {
		isText, payload, err := s.conn.ReadFrame()
		if err != nil {
			s.log.Debugf("conn %s: read ended for %s: %v", s.conn.ID(), s.name, err)
			return
		}

		s.touchAndMaybeReactivate(payload)

		if isText {
			if s.handleText(payload) {
				return
			}
			continue
		}
		s.handleBinary(payload)
	}
}

// touchAndMaybeReactivate implements spec.md §4.5 step 2's reactivation
// rule: any non-empty inbound frame from an INACTIVE user flips them back
// to ACTIVE and notifies that one session directly.
func (s *Session) touchAndMaybeReactivate(payload []byte) {
	s.srv.Directory.Touch(s.name)

	rec, ok := s.srv.Directory.Get(s.name)
	if !ok || rec.State != presence.Inactive {
		return
	}
	if len(strings.TrimSpace(string(payload))) == 0 {
		return
	}
	if _, changed := s.srv.Directory.SetState(s.name, presence.Active, true); changed {
		s.srv.Router.BroadcastPresence(s.srv.Directory.SnapshotConnected(), s.name, presence.Active)
		_ = s.conn.SendText(fmt.Sprintf("Se ha reactivado el estado de %s a ACTIVO.", s.name))
	}
}

// handleText processes an inbound text frame, returning true if the
// session loop should exit (a clean /exit close).
func (s *Session) handleText(payload []byte) bool {
	text := strings.TrimSpace(string(payload))
	if text == "" {
		_ = s.conn.SendBinary(protocol.EncodeErrorResponse(protocol.ErrEmptyMessage))
		return false
	}
	if text == "/exit" {
		s.conn.CloseWithReason("El usuario solicitó desconexión voluntaria")
		return true
	}

	s.srv.Public.Append(s.name, text)
	s.srv.Router.BroadcastText(s.srv.Directory.SnapshotConnected(), fmt.Sprintf("%s: %s", s.name, text))
	return false
}

// handleBinary decodes and dispatches a binary frame by opcode, per the
// §4.5.1 table.
func (s *Session) handleBinary(payload []byte) {
	frame, err := protocol.Decode(payload)
	if err != nil {
		s.log.Debugf("conn %s: malformed frame from %s: %v", s.conn.ID(), s.name, err)
		_ = s.conn.SendBinary(protocol.EncodeErrorResponse(protocol.ErrEmptyMessage))
		return
	}

	switch frame.Opcode {
	case protocol.OpListUsers:
		s.onListUsers()
	case protocol.OpGetUser:
		s.onGetUser(frame)
	case protocol.OpChangeStatus:
		s.onChangeStatus(frame)
	case protocol.OpSendMessage:
		s.onSendMessage(frame)
	case protocol.OpGetHistory:
		s.onGetHistory(frame)
	case protocol.OpListAllUsers:
		s.onListAllUsers()
	default:
		s.log.Tracef("conn %s: unknown opcode %d from %s", s.conn.ID(), frame.Opcode, s.name)
		_ = s.conn.SendBinary(protocol.EncodeErrorResponse(protocol.ErrEmptyMessage))
	}
}

func (s *Session) onListUsers() {
	s.log.Tracef("%s: LIST_USERS", s.name)
	entries := userEntries(s.srv.Directory.SnapshotConnected())
	_ = s.conn.SendBinary(protocol.EncodeUserList(protocol.OpRespListUsers, entries))
}

func (s *Session) onListAllUsers() {
	s.log.Tracef("%s: LIST_ALL_USERS", s.name)
	entries := userEntries(s.srv.Directory.Snapshot())
	_ = s.conn.SendBinary(protocol.EncodeUserList(protocol.OpRespAllUsers, entries))
}

func (s *Session) onGetUser(frame protocol.Frame) {
	target, ok := frame.Field(0)
	if !ok {
		_ = s.conn.SendBinary(protocol.EncodeErrorResponse(protocol.ErrEmptyMessage))
		return
	}
	s.log.Tracef("%s: GET_USER %s", s.name, target)
	rec, ok := s.srv.Directory.Get(target)
	if !ok || rec.State == presence.Disconnected {
		_ = s.conn.SendBinary(protocol.EncodeErrorResponse(protocol.ErrUserNotFound))
		return
	}
	_ = s.conn.SendBinary(protocol.EncodeGetUser(protocol.UserEntry{Name: rec.Name, State: rec.State.Byte()}))
}

func (s *Session) onChangeStatus(frame protocol.Frame) {
	target, ok := frame.Field(0)
	if !ok {
		_ = s.conn.SendBinary(protocol.EncodeErrorResponse(protocol.ErrEmptyMessage))
		return
	}
	stateField, ok := frame.Field(1)
	if !ok || len(stateField) != 1 || !presence.ValidChangeTarget(stateField[0]) {
		_ = s.conn.SendBinary(protocol.EncodeErrorResponse(protocol.ErrInvalidStatus))
		return
	}
	s.log.Tracef("%s: CHANGE_STATUS %s -> %d", s.name, target, stateField[0])
	if _, exists := s.srv.Directory.Get(target); !exists {
		_ = s.conn.SendBinary(protocol.EncodeErrorResponse(protocol.ErrUserNotFound))
		return
	}
	newState := presence.State(stateField[0])
	if _, changed := s.srv.Directory.SetState(target, newState, true); changed {
		s.srv.Router.BroadcastPresence(s.srv.Directory.SnapshotConnected(), target, newState)
	}
}

func (s *Session) onSendMessage(frame protocol.Frame) {
	dest, ok := frame.Field(0)
	if !ok {
		_ = s.conn.SendBinary(protocol.EncodeErrorResponse(protocol.ErrEmptyMessage))
		return
	}
	text, ok := frame.Field(1)
	if !ok || strings.TrimSpace(text) == "" {
		_ = s.conn.SendBinary(protocol.EncodeErrorResponse(protocol.ErrEmptyMessage))
		return
	}
	s.log.Tracef("%s: SEND_MESSAGE -> %s", s.name, dest)

	if dest == publicTarget {
		s.srv.Public.Append(s.name, text)
		encoded, err := protocol.EncodeMessageReceived(s.name, text)
		if err != nil {
			s.log.Errorf("encode MESSAGE_RECEIVED: %v", err)
			return
		}
		s.srv.Router.BroadcastFrame(s.srv.Directory.SnapshotConnected(), encoded)
		return
	}

	s.srv.Private.Append(s.name, dest, text)
	rec, exists := s.srv.Directory.Get(dest)
	if !exists || rec.State == presence.Disconnected {
		_ = s.conn.SendBinary(protocol.EncodeErrorResponse(protocol.ErrUserDisconnected))
		return
	}
	encoded, err := protocol.EncodeMessageReceived(s.name, text)
	if err != nil {
		s.log.Errorf("encode MESSAGE_RECEIVED: %v", err)
		return
	}
	s.srv.Router.SendTo(rec.Conn, encoded)
	_ = s.conn.SendBinary(encoded)
}

func (s *Session) onGetHistory(frame protocol.Frame) {
	target, ok := frame.Field(0)
	if !ok {
		_ = s.conn.SendBinary(protocol.EncodeErrorResponse(protocol.ErrEmptyMessage))
		return
	}
	s.log.Tracef("%s: GET_HISTORY %s", s.name, target)

	if target == publicTarget {
		_ = s.conn.SendBinary(protocol.EncodeHistory(historyEntries(s.srv.Public.Load())))
		return
	}
	if !s.srv.Private.Exists(s.name, target) {
		_ = s.conn.SendBinary(protocol.EncodeErrorResponse(protocol.ErrUserNotFound))
		return
	}
	_ = s.conn.SendBinary(protocol.EncodeHistory(historyEntries(s.srv.Private.Load(s.name, target))))
}

func userEntries(records []directory.Record) []protocol.UserEntry {
	out := make([]protocol.UserEntry, 0, len(records))
	for _, rec := range records {
		out = append(out, protocol.UserEntry{Name: rec.Name, State: rec.State.Byte()})
	}
	return out
}

func historyEntries(entries []history.Entry) []protocol.HistoryEntry {
	out := make([]protocol.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, protocol.HistoryEntry{Sender: e.Sender, Text: e.Text})
	}
	return out
}
