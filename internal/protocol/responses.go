package protocol

// UserEntry is one (name, state) pair as carried in RESPONSE_LIST_USERS,
// RESPONSE_ALL_USERS and RESPONSE_GET_USER.
type UserEntry struct {
	Name  string
	State byte
}

// HistoryEntry is one (sender, text) pair as carried in RESPONSE_HISTORY.
type HistoryEntry struct {
	Sender string
	Text   string
}

// EncodeUserList builds RESPONSE_LIST_USERS / RESPONSE_ALL_USERS: a count
// byte followed by, for each entry, len8, name, state.
func EncodeUserList(opcode byte, entries []UserEntry) []byte {
	chunks := make([][]byte, 0, 1+len(entries)*2)
	chunks = append(chunks, []byte{byte(len(entries))})
	for _, e := range entries {
		chunks = append(chunks, []byte{byte(len(e.Name))}, []byte(e.Name), []byte{e.State})
	}
	return EncodeRaw(opcode, chunks...)
}

// EncodeGetUser builds RESPONSE_GET_USER = (len8, name, state).
func EncodeGetUser(e UserEntry) []byte {
	return EncodeRaw(OpRespGetUser, []byte{byte(len(e.Name))}, []byte(e.Name), []byte{e.State})
}

// EncodeUserRegistered builds USER_REGISTERED: opcode, len8(name), name,
// len8(addr), addr. The address field is always present.
func EncodeUserRegistered(name, addr string) []byte {
	return EncodeRaw(OpUserRegistered,
		[]byte{byte(len(name))}, []byte(name),
		[]byte{byte(len(addr))}, []byte(addr),
	)
}

// EncodeUserStatusChanged builds USER_STATUS_CHANGED: opcode, len8(name),
// name, state_byte — no length prefix before the final state byte.
func EncodeUserStatusChanged(name string, state byte) []byte {
	return EncodeRaw(OpUserStatusChanged,
		[]byte{byte(len(name))}, []byte(name),
		[]byte{state},
	)
}

// EncodeMessageReceived builds MESSAGE_RECEIVED(sender, text).
func EncodeMessageReceived(sender, text string) ([]byte, error) {
	return Encode(OpMessageReceived, []byte(sender), []byte(text))
}

// EncodeHistory builds RESPONSE_HISTORY: a count byte followed by, for
// each entry, len8, sender, len8, text.
func EncodeHistory(entries []HistoryEntry) []byte {
	chunks := make([][]byte, 0, 1+len(entries)*4)
	chunks = append(chunks, []byte{byte(len(entries))})
	for _, e := range entries {
		chunks = append(chunks,
			[]byte{byte(len(e.Sender))}, []byte(e.Sender),
			[]byte{byte(len(e.Text))}, []byte(e.Text),
		)
	}
	return EncodeRaw(OpRespHistory, chunks...)
}
