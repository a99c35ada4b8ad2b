package session

import "yappuccino/internal/directory"

// Conn is the abstract transport a Session drives: it delivers typed
// frames (text vs binary) and accepts typed frames, with no knowledge of
// WebSocket, TCP, or any other wire-level concern. internal/transport
// provides the gorilla/websocket-backed implementation; tests use a fake.
type Conn interface {
	directory.Conn // Open, SendBinary, SendText
	ID() string
	Address() string
	ReadFrame() (isText bool, payload []byte, err error)
	CloseWithReason(reason string)
	Close()
}
