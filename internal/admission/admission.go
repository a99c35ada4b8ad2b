// Package admission validates the WebSocket handshake and promotes
// accepted connections into sessions, per spec.md §4.6.
package admission

import (
	"net/http"

	"github.com/pion/logging"

	"yappuccino/internal/presence"
	"yappuccino/internal/session"
	"yappuccino/internal/transport"
)

const (
	invalidNameBody  = "Nombre de usuario inválido"
	nameTakenBody    = "Usuario ya conectado"
)

// Controller wires the shared session.Server into an http.Handler that
// performs the name handshake before every WebSocket upgrade.
type Controller struct {
	srv *session.Server
	log logging.LeveledLogger
}

// New builds a Controller backed by srv.
func New(srv *session.Server, log logging.LeveledLogger) *Controller {
	if log == nil {
		log = logging.NewDefaultLoggerFactory().NewLogger("admission")
	}
	return &Controller{srv: srv, log: log}
}

// ServeHTTP implements spec.md §4.6: percent-decode the `name` query
// parameter, reject invalid/duplicate names with 400, otherwise upgrade
// and hand the connection off to a new Session. A non-upgrade request acts
// as a pre-flight name-availability check.
func (c *Controller) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Query already percent-decodes the value once; it is not decoded again.
	name := r.URL.Query().Get("name")
	if name == "" || name == "~" {
		http.Error(w, invalidNameBody, http.StatusBadRequest)
		return
	}

	if taken := c.isNameTaken(name); taken {
		http.Error(w, nameTakenBody, http.StatusBadRequest)
		return
	}

	if !isUpgradeRequest(r) {
		w.WriteHeader(http.StatusOK)
		return
	}

	ws, err := transport.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.log.Warnf("upgrade failed for %s: %v", name, err)
		return
	}

	conn := transport.New(ws, c.srv.Log)
	c.log.Infof("conn %s: admitted as %s from %s", conn.ID(), name, conn.Address())
	go session.New(c.srv, conn, name).Run()
}

func (c *Controller) isNameTaken(name string) bool {
	rec, ok := c.srv.Directory.Get(name)
	if !ok {
		return false
	}
	return rec.State != presence.Disconnected && rec.Conn != nil && rec.Conn.Open()
}

func isUpgradeRequest(r *http.Request) bool {
	return r.Header.Get("Upgrade") != "" && r.Header.Get("Connection") != ""
}
