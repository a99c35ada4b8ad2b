package session

import (
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"yappuccino/internal/directory"
	"yappuccino/internal/history"
	"yappuccino/internal/presence"
	"yappuccino/internal/protocol"
	"yappuccino/internal/router"
)

// fakeConn is an in-memory Conn for driving a Session without a real
// socket: inbound frames are queued by the test, outbound frames are
// captured for assertions.
type fakeConn struct {
	mu      sync.Mutex
	id      string
	addr    string
	open    bool
	inbound chan inboundFrame
	sentBin [][]byte
	sentTxt []string
	closed  bool
}

type inboundFrame struct {
	isText  bool
	payload []byte
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id, addr: "127.0.0.1:0", open: true, inbound: make(chan inboundFrame, 16)}
}

func (f *fakeConn) Open() bool { f.mu.Lock(); defer f.mu.Unlock(); return f.open }
func (f *fakeConn) ID() string { return f.id }
func (f *fakeConn) Address() string { return f.addr }

func (f *fakeConn) SendBinary(b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]byte(nil), b...)
	f.sentBin = append(f.sentBin, cp)
	return nil
}

func (f *fakeConn) SendText(s string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentTxt = append(f.sentTxt, s)
	return nil
}

func (f *fakeConn) ReadFrame() (bool, []byte, error) {
	frame, ok := <-f.inbound
	if !ok {
		return false, nil, io.EOF
	}
	return frame.isText, frame.payload, nil
}

func (f *fakeConn) CloseWithReason(reason string) { f.Close() }

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.open = false
	close(f.inbound)
}

func (f *fakeConn) push(isText bool, payload []byte) {
	f.inbound <- inboundFrame{isText: isText, payload: payload}
}

func (f *fakeConn) lastBinary() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sentBin) == 0 {
		return nil
	}
	return f.sentBin[len(f.sentBin)-1]
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	return &Server{
		Directory: directory.New(nil),
		Router:    router.New(nil),
		Public:    history.NewPublic(filepath.Join(dir, "public.log"), nil),
		Private:   history.NewPrivate(filepath.Join(dir, "private"), nil),
	}
}

func TestSessionEnterSendsWelcomeAndBroadcastsJoin(t *testing.T) {
	srv := newTestServer(t)
	bob := newFakeConn("bob-conn")
	New(srv, bob, "bob").Enter()

	alice := newFakeConn("alice-conn")
	sAlice := New(srv, alice, "alice")
	sAlice.Enter()

	if len(alice.sentTxt) == 0 || alice.sentTxt[0] != welcomeText {
		t.Fatalf("alice should first receive the welcome text, got %v", alice.sentTxt)
	}

	found := false
	for _, txt := range bob.sentTxt {
		if strings.Contains(txt, "alice se ha unido") {
			found = true
		}
	}
	if !found {
		t.Fatalf("bob should observe alice's join broadcast, got %v", bob.sentTxt)
	}
}

func TestSessionListUsers(t *testing.T) {
	srv := newTestServer(t)
	alice := newFakeConn("alice-conn")
	New(srv, alice, "alice").Enter()

	bob := newFakeConn("bob-conn")
	sBob := New(srv, bob, "bob")
	sBob.Enter()

	sBob.onListUsers()
	got := bob.lastBinary()
	if len(got) == 0 || got[0] != protocol.OpRespListUsers {
		t.Fatalf("expected RESPONSE_LIST_USERS, got % x", got)
	}
	if got[1] != 2 {
		t.Fatalf("expected 2 connected users, got count byte %d", got[1])
	}
}

func TestSessionSendMessagePublicFanOut(t *testing.T) {
	srv := newTestServer(t)
	alice := newFakeConn("alice-conn")
	sAlice := New(srv, alice, "alice")
	sAlice.Enter()

	bob := newFakeConn("bob-conn")
	sBob := New(srv, bob, "bob")
	sBob.Enter()

	f, _ := protocol.Encode(protocol.OpSendMessage, []byte("~"), []byte("hello"))
	frame, _ := protocol.Decode(f)
	sAlice.onSendMessage(frame)

	got := bob.lastBinary()
	if len(got) == 0 || got[0] != protocol.OpMessageReceived {
		t.Fatalf("bob should receive MESSAGE_RECEIVED, got % x", got)
	}
	decoded, _ := protocol.Decode(got)
	sender, _ := decoded.Field(0)
	text, _ := decoded.Field(1)
	if sender != "alice" || text != "hello" {
		t.Fatalf("got sender=%q text=%q", sender, text)
	}

	entries := srv.Public.Load()
	if len(entries) != 1 || entries[0].Sender != "alice" || entries[0].Text != "hello" {
		t.Fatalf("public history = %+v", entries)
	}
}

func TestSessionSendMessageToDisconnectedPeer(t *testing.T) {
	srv := newTestServer(t)
	alice := newFakeConn("alice-conn")
	sAlice := New(srv, alice, "alice")
	sAlice.Enter()

	bob := newFakeConn("bob-conn")
	sBob := New(srv, bob, "bob")
	sBob.Enter()
	sBob.Exit()

	f, _ := protocol.Encode(protocol.OpSendMessage, []byte("bob"), []byte("hi"))
	frame, _ := protocol.Decode(f)
	sAlice.onSendMessage(frame)

	got := alice.lastBinary()
	want := protocol.EncodeErrorResponse(protocol.ErrUserDisconnected)
	if string(got) != string(want) {
		t.Fatalf("alice should see ERROR_RESPONSE(USER_DISCONNECTED), got % x", got)
	}
}

func TestSessionChangeStatusInvalid(t *testing.T) {
	srv := newTestServer(t)
	alice := newFakeConn("alice-conn")
	sAlice := New(srv, alice, "alice")
	sAlice.Enter()

	f, _ := protocol.Encode(protocol.OpChangeStatus, []byte("alice"), []byte{7})
	frame, _ := protocol.Decode(f)
	sAlice.onChangeStatus(frame)

	got := alice.lastBinary()
	want := protocol.EncodeErrorResponse(protocol.ErrInvalidStatus)
	if string(got) != string(want) {
		t.Fatalf("expected ERROR_RESPONSE(INVALID_STATUS), got % x", got)
	}

	rec, _ := srv.Directory.Get("alice")
	if rec.State.Byte() != 1 {
		t.Fatalf("invalid CHANGE_STATUS must not mutate state, got %v", rec.State)
	}
}

func TestSessionChangeStatusRejectsDisconnected(t *testing.T) {
	srv := newTestServer(t)
	alice := newFakeConn("alice-conn")
	sAlice := New(srv, alice, "alice")
	sAlice.Enter()

	f, _ := protocol.Encode(protocol.OpChangeStatus, []byte("alice"), []byte{0})
	frame, _ := protocol.Decode(f)
	sAlice.onChangeStatus(frame)

	got := alice.lastBinary()
	want := protocol.EncodeErrorResponse(protocol.ErrInvalidStatus)
	if string(got) != string(want) {
		t.Fatalf("expected ERROR_RESPONSE(INVALID_STATUS) for state_byte=0, got % x", got)
	}

	rec, _ := srv.Directory.Get("alice")
	if rec.State != presence.Active {
		t.Fatalf("state_byte=0 must not disconnect the user via CHANGE_STATUS, got %v", rec.State)
	}
	if rec.Conn == nil {
		t.Fatalf("conn must remain set; CHANGE_STATUS must never clear it")
	}
}

func TestSessionEmptyTextYieldsErrorResponse(t *testing.T) {
	srv := newTestServer(t)
	alice := newFakeConn("alice-conn")
	sAlice := New(srv, alice, "alice")
	sAlice.Enter()

	exit := sAlice.handleText([]byte("   "))
	if exit {
		t.Fatalf("empty text must not end the session")
	}
	got := alice.lastBinary()
	want := protocol.EncodeErrorResponse(protocol.ErrEmptyMessage)
	if string(got) != string(want) {
		t.Fatalf("expected ERROR_RESPONSE(EMPTY_MESSAGE), got % x", got)
	}
}

func TestSessionExitText(t *testing.T) {
	srv := newTestServer(t)
	alice := newFakeConn("alice-conn")
	sAlice := New(srv, alice, "alice")
	sAlice.Enter()

	if !sAlice.handleText([]byte("/exit")) {
		t.Fatalf("/exit must end the session loop")
	}
}
