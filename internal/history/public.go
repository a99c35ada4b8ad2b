// Package history implements the bounded public-room log and the
// unbounded per-pair private logs, both persisted as line-oriented files
// with a '|' sentinel between sender and text.
package history

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/pion/logging"
)

// PublicCapacity is the maximum number of entries retained in the public
// room log; the oldest entry is evicted on overflow.
const PublicCapacity = 50

// Entry is one (sender, text) record.
type Entry struct {
	Sender string
	Text   string
}

// Public is the mutex-guarded, file-backed public room log. Its lock is
// distinct from the directory lock and is never held across a directory
// operation.
type Public struct {
	mu   sync.Mutex
	path string
	log  logging.LeveledLogger
}

// NewPublic returns the public log backed by path. The file is not opened
// here; Append and Load open it on each call.
func NewPublic(path string, log logging.LeveledLogger) *Public {
	if log == nil {
		log = logging.NewDefaultLoggerFactory().NewLogger("history")
	}
	return &Public{path: path, log: log}
}

// Append loads the current file, evicts the oldest entry if the log is
// already at capacity, appends (user, msg), and rewrites the file.
// I/O failures are logged; they do not block the in-memory delivery path.
func (p *Public) Append(user, msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries, err := p.loadLocked()
	if err != nil {
		p.log.Warnf("public history: load failed, starting fresh: %v", err)
		entries = nil
	}
	if len(entries) >= PublicCapacity {
		entries = entries[len(entries)-PublicCapacity+1:]
	}
	entries = append(entries, Entry{Sender: user, Text: msg})

	if err := p.rewriteLocked(entries); err != nil {
		p.log.Errorf("public history: rewrite failed: %v", err)
	}
}

// Load returns the current public log, oldest first.
func (p *Public) Load() []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	entries, err := p.loadLocked()
	if err != nil {
		p.log.Warnf("public history: load failed: %v", err)
		return nil
	}
	return entries
}

func (p *Public) loadLocked() ([]Entry, error) {
	f, err := os.Open(p.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		sender, text, ok := strings.Cut(line, "|")
		if !ok {
			continue
		}
		entries = append(entries, Entry{Sender: sender, Text: text})
	}
	return entries, scanner.Err()
}

func (p *Public) rewriteLocked(entries []Entry) error {
	tmp := p.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "%s|%s\n", e.Sender, e.Text); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, p.path)
}
