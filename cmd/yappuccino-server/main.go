// Command yappuccino-server runs the YaPPuchino chat server: a single
// process accepting WebSocket clients, maintaining the user directory and
// presence engine, and routing public and private messages.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/logging"

	"yappuccino/internal/admission"
	"yappuccino/internal/directory"
	"yappuccino/internal/history"
	"yappuccino/internal/obslog"
	"yappuccino/internal/router"
	"yappuccino/internal/session"
	"yappuccino/internal/sweeper"
)

func main() {
	addr := flag.String("addr", ":5000", "address to listen on")
	path := flag.String("path", "/ws", "WebSocket handshake path")
	publicLogPath := flag.String("public-log", "yappuchino-public.log", "public room history file")
	privateLogDir := flag.String("private-log-dir", "yappuchino-private", "directory holding per-pair private history files")
	serverLogFile := flag.String("server-log", "", "file to write server logs to (defaults to stdout)")
	verbose := flag.Bool("verbose", false, "enable trace-level logging")

	flag.Parse()

	level := logging.LogLevelInfo
	if *verbose {
		level = logging.LogLevelTrace
	}

	var factory *obslog.Factory
	if *serverLogFile != "" {
		f, file, err := obslog.NewFileFactory(*serverLogFile, level)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open server log file: %v\n", err)
			os.Exit(1)
		}
		defer file.Close()
		factory = f
	} else {
		factory = obslog.NewFactory(os.Stdout, level)
	}

	httpLog := factory.For("http")
	dirLog := factory.For("directory")
	routerLog := factory.For("router")
	sessionLog := factory.For("session")
	historyLog := factory.For("history")
	sweeperLog := factory.For("sweeper")
	admissionLog := factory.For("admission")

	dir := directory.New(dirLog)
	rt := router.New(routerLog)
	pub := history.NewPublic(*publicLogPath, historyLog)
	priv := history.NewPrivate(*privateLogDir, historyLog)

	srv := &session.Server{
		Directory: dir,
		Router:    rt,
		Public:    pub,
		Private:   priv,
		Log:       sessionLog,
	}

	ctrl := admission.New(srv, admissionLog)

	mux := http.NewServeMux()
	mux.Handle(*path, ctrl)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sweeper.New(dir, rt, sweeperLog).Run(ctx)

	httpServer := &http.Server{Addr: *addr, Handler: mux}

	go func() {
		httpLog.Infof("listening on %s%s", *addr, *path)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			httpLog.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}()

	httpLog.Infof("=== YAPPUCHINO SERVER READY ===")
	httpLog.Infof("- WebSocket endpoint: %s%s", *addr, *path)
	httpLog.Infof("- Health check: %s/healthz", *addr)
	httpLog.Infof("- Public history: %s (cap %d)", *publicLogPath, history.PublicCapacity)
	httpLog.Infof("- Private history dir: %s", *privateLogDir)
	httpLog.Infof("- Opcodes: LIST_USERS=1 GET_USER=2 CHANGE_STATUS=3 SEND_MESSAGE=4 GET_HISTORY=5 LIST_ALL_USERS=6")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	httpLog.Infof("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		httpLog.Errorf("shutdown error: %v", err)
	}
}
