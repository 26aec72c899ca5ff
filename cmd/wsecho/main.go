// Command wsecho runs a WebSocket server that echoes every message back.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/gwebsockets/websocket"
	"github.com/gwebsockets/websocket/wsnet"
)

func main() {
	addr := flag.String("addr", "localhost:8080", "address to listen on")
	useHTTP := flag.Bool("http", false, "serve through net/http and hijack upgrade requests")
	fragment := flag.Int("fragment", 0, "split echoed messages into frames of at most this many bytes")
	readLimit := flag.Float64("read-limit", 0, "bytes per second read from each connection, 0 for no limit")
	verbose := flag.Bool("v", false, "log connection events")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, log, *addr, *useHTTP, &wsnet.Options{
		Engine: &websocket.Options{
			Session: &websocket.SessionOptions{FragmentSize: *fragment},
		},
		ReadLimit: rate.Limit(*readLimit),
		Logger:    log,
	})
	if err != nil {
		log.Error("wsecho failed", "err", err)
		os.Exit(1)
	}
}

// run listens on addr and echoes until ctx is done.
func run(ctx context.Context, log *slog.Logger, addr string, useHTTP bool, opts *wsnet.Options) error {
	l, err := wsnet.Listen(ctx, addr)
	if err != nil {
		return err
	}
	log.Info("listening", "addr", "ws://"+l.Addr().String())

	h := &echoHandler{log: log}
	t := wsnet.NewTransport(h, opts)
	h.engine = t.Engine()
	defer t.Shutdown()

	errc := make(chan error, 1)
	if useHTTP {
		s := &http.Server{
			Handler:           t,
			ReadHeaderTimeout: time.Second * 10,
		}
		go func() {
			errc <- s.Serve(l)
		}()
		defer s.Close()
	} else {
		go func() {
			errc <- t.Serve(l)
		}()
		defer l.Close()
	}

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info("shutting down")
		return nil
	}
}

type echoHandler struct {
	log    *slog.Logger
	engine *websocket.Engine
}

func (h *echoHandler) OnSessionOpen(id string) {
	h.log.Info("session opened", "id", id)
}

func (h *echoHandler) OnMessage(id string, msg websocket.Message) {
	err := h.engine.Send(id, msg.Type, msg.Payload, nil)
	if err != nil {
		h.log.Warn("failed to echo message", "id", id, "err", err)
	}
}

func (h *echoHandler) OnSessionClose(id string, err error) {
	h.log.Info("session closed", "id", id, "status", websocket.CloseStatus(err), "err", err)
}
