package history

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pion/logging"
)

// Private is the append-only per-unordered-pair private message log.
// Concurrency is left to the filesystem's append semantics for the write
// path; a small mutex serializes the directory-creation fast path so two
// first-ever writers for the same pair don't race on MkdirAll.
type Private struct {
	dir string
	log logging.LeveledLogger
	mu  sync.Mutex
}

// NewPrivate roots every pair's file under dir.
func NewPrivate(dir string, log logging.LeveledLogger) *Private {
	if log == nil {
		log = logging.NewDefaultLoggerFactory().NewLogger("history")
	}
	return &Private{dir: dir, log: log}
}

// CanonicalPair orders (a, b) as (min, max) so AppendPrivate(a,b,..) and
// AppendPrivate(b,a,..) land in the same file.
func CanonicalPair(a, b string) (string, string) {
	if a <= b {
		return a, b
	}
	return b, a
}

func (p *Private) pathFor(a, b string) string {
	lo, hi := CanonicalPair(a, b)
	return filepath.Join(p.dir, lo+"_"+hi+".log")
}

// Append writes from ‖ '|' ‖ msg ‖ '\n' to the file for the canonical
// pair (from, to), creating it and its directory if necessary.
func (p *Private) Append(from, to, msg string) {
	p.mu.Lock()
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		p.mu.Unlock()
		p.log.Errorf("private history: mkdir %s: %v", p.dir, err)
		return
	}
	p.mu.Unlock()

	f, err := os.OpenFile(p.pathFor(from, to), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		p.log.Errorf("private history: open %s/%s: %v", from, to, err)
		return
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%s|%s\n", from, msg); err != nil {
		p.log.Errorf("private history: write %s/%s: %v", from, to, err)
	}
}

// Exists reports whether a private log exists for the canonical pair.
func (p *Private) Exists(a, b string) bool {
	_, err := os.Stat(p.pathFor(a, b))
	return err == nil
}

// Load returns the private log for (a, b) — identical regardless of
// argument order, since both resolve to the canonical pair's file.
func (p *Private) Load(a, b string) []Entry {
	f, err := os.Open(p.pathFor(a, b))
	if err != nil {
		return nil
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
	return entries
}
