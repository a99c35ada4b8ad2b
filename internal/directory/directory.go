// Package directory owns the process-wide authoritative mapping from
// username to UserRecord. It is the exclusive owner of every UserRecord;
// callers never hold a pointer to one across a lock release.
package directory

import (
	"sync"
	"time"

	"github.com/pion/logging"

	"yappuccino/internal/presence"
)

// Conn is the handle the directory holds per live user: an identity check
// for the "refuse to overwrite a live conn" invariant, plus the send
// primitives the router needs to fan frames out directly from a directory
// snapshot, without the router depending on the transport package.
type Conn interface {
	// Open reports whether the underlying transport is still connected.
	Open() bool
	SendBinary(b []byte) error
	SendText(s string) error
}

// Record is the directory's per-user state. Copies returned by Snapshot
// are safe to read without the directory lock; the live Record behind the
// name is only ever mutated under it.
type Record struct {
	Name          string
	State         presence.State
	PreviousState presence.State
	Conn          Conn
	Address       string
	LastActivity  time.Time
}

// Directory is a single mutex-guarded map from name to Record, per the
// teacher's package-level nameToUserSession/mu pair, promoted to a struct
// so tests and multiple servers don't share global state.
type Directory struct {
	mu      sync.Mutex
	records map[string]*Record
	log     logging.LeveledLogger
	now     func() time.Time
}

// New builds an empty Directory. log may be nil.
func New(log logging.LeveledLogger) *Directory {
	if log == nil {
		log = logging.NewDefaultLoggerFactory().NewLogger("directory")
	}
	return &Directory{
		records: make(map[string]*Record),
		log:     log,
		now:     time.Now,
	}
}

// UpsertOnJoin admits name with conn/addr. If absent, creates an ACTIVE
// record. If present and DISCONNECTED, reconnects it, restoring
// previousState (mapping INACTIVE to ACTIVE) and reports wasReconnect. If
// present with a live conn, the upsert is refused — admission is expected
// to have already rejected this case, but the directory enforces the
// invariant regardless.
func (d *Directory) UpsertOnJoin(name string, conn Conn, addr string) (Record, bool, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	existing, ok := d.records[name]
	if ok && existing.State != presence.Disconnected {
		if existing.Conn != nil && existing.Conn.Open() {
			d.log.Warnf("refusing to overwrite live connection for %s", name)
			return Record{}, false, false
		}
	}

	if !ok {
		rec := &Record{
			Name:          name,
			State:         presence.Active,
			PreviousState: presence.Active,
			Conn:          conn,
			Address:       addr,
			LastActivity:  now,
		}
		d.records[name] = rec
		return *rec, false, true
	}

	restored := existing.PreviousState
	if restored == presence.Inactive {
		restored = presence.Active
	}
	existing.Conn = conn
	existing.Address = addr
	existing.State = restored
	existing.PreviousState = restored
	existing.LastActivity = now
	return *existing, true, true
}

// MarkDisconnected transitions name to DISCONNECTED and clears conn. No-op
// if name is absent.
func (d *Directory) MarkDisconnected(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.records[name]
	if !ok {
		return
	}
	if rec.State != presence.Disconnected {
		rec.PreviousState = rec.State
	}
	rec.State = presence.Disconnected
	rec.Conn = nil
}

// SetState is a no-op when state already equals newState and force is
// false. Otherwise it updates state (and previousState, when newState is
// not DISCONNECTED) and returns the updated record plus whether a change
// actually happened, for the caller to decide whether to broadcast.
func (d *Directory) SetState(name string, newState presence.State, force bool) (Record, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.records[name]
	if !ok {
		return Record{}, false
	}
	if rec.State == newState && !force {
		return *rec, false
	}
	rec.State = newState
	if newState != presence.Disconnected {
		rec.PreviousState = newState
	}
	return *rec, true
}

// Touch refreshes lastActivity for name. No-op if absent.
func (d *Directory) Touch(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if rec, ok := d.records[name]; ok {
		rec.LastActivity = d.now()
	}
}

// Get returns a copy of the record for name.
func (d *Directory) Get(name string) (Record, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.records[name]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Snapshot returns a copy of every record, suitable for iteration outside
// the lock.
func (d *Directory) Snapshot() []Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Record, 0, len(d.records))
	for _, rec := range d.records {
		out = append(out, *rec)
	}
	return out
}

// SnapshotConnected is Snapshot restricted to records with state != DISCONNECTED.
func (d *Directory) SnapshotConnected() []Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Record, 0, len(d.records))
	for _, rec := range d.records {
		if rec.State != presence.Disconnected {
			out = append(out, *rec)
		}
	}
	return out
}

// IdleSince returns every record with state == ACTIVE whose lastActivity
// is at or before the given cutoff — the sweeper's candidate set.
func (d *Directory) IdleSince(cutoff time.Time) []Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Record
	for _, rec := range d.records {
		if rec.State == presence.Active && !rec.LastActivity.After(cutoff) {
			out = append(out, *rec)
		}
	}
	return out
}
