// server publishes the replay as JSON frames: the latest frame over http, and a live
// stream of frames to any number of websocket clients.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"frozenlake/server/cell_views"
	"frozenlake/server/fastview"
	"frozenlake/session"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/sync/errgroup"
)

const shutdownGracePeriod = 5 * time.Second

// Server fans out frames converted from session snapshots. Frames are idempotent, so a
// slow subscriber only ever misses intermediate frames and never blocks the replay.
type Server struct {
	addr   string
	router *mux.Router
	opts   fastview.Options
	latest atomic.Pointer[cell_views.Frame]

	mu          sync.Mutex
	subscribers map[string]chan cell_views.Frame
}

// NewServer starts converting snapshots into frames until ctx is done or snapshots closes.
func NewServer(
	ctx context.Context,
	addr string,
	snapshots <-chan session.Snapshot,
	opts fastview.Options,
) *Server {
	server := &Server{
		addr:        addr,
		opts:        opts,
		subscribers: map[string]chan cell_views.Frame{},
	}

	router := mux.NewRouter()
	router.HandleFunc("/frame", server.serveFrame).Methods(http.MethodGet)
	router.HandleFunc("/ws", server.serveWebsocket).Methods(http.MethodGet)
	server.router = router

	go server.fanOut(channerics.Convert(ctx.Done(), snapshots, cell_views.Convert))
	return server
}

// Handler returns the server's routes.
func (server *Server) Handler() http.Handler {
	return server.router
}

// Serve listens on the server's address until ctx is done, then shuts down gracefully.
// Websocket clients are bound to ctx and disconnect with it.
func (server *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              server.addr,
		Handler:           server.router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		slog.Info("serving frames", "addr", server.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

// fanOut records the latest frame and offers it to every subscriber. A subscriber whose
// buffered frame is still unread has it replaced by the newer one.
func (server *Server) fanOut(frames <-chan cell_views.Frame) {
	defer server.closeSubscribers()

	for frame := range frames {
		frame := frame
		server.latest.Store(&frame)

		server.mu.Lock()
		for _, sub := range server.subscribers {
			select {
			case sub <- frame:
				continue
			default:
			}
			select {
			case <-sub:
			default:
			}
			select {
			case sub <- frame:
			default:
			}
		}
		server.mu.Unlock()
	}
}

func (server *Server) subscribe() (string, <-chan cell_views.Frame) {
	id := uuid.New().String()
	sub := make(chan cell_views.Frame, 1)

	server.mu.Lock()
	defer server.mu.Unlock()
	server.subscribers[id] = sub
	return id, sub
}

func (server *Server) unsubscribe(id string) {
	server.mu.Lock()
	defer server.mu.Unlock()
	if sub, ok := server.subscribers[id]; ok {
		delete(server.subscribers, id)
		close(sub)
	}
}

func (server *Server) closeSubscribers() {
	server.mu.Lock()
	defer server.mu.Unlock()
	for id, sub := range server.subscribers {
		delete(server.subscribers, id)
		close(sub)
	}
}

// NumSubscribers returns the number of connected websocket clients.
func (server *Server) NumSubscribers() int {
	server.mu.Lock()
	defer server.mu.Unlock()
	return len(server.subscribers)
}

// serveFrame writes the latest frame, or 503 before the first one is available.
func (server *Server) serveFrame(w http.ResponseWriter, r *http.Request) {
	frame := server.latest.Load()
	if frame == nil {
		http.Error(w, "no frame yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(frame); err != nil {
		slog.Warn("write frame", "err", err)
	}
}

// serveWebsocket streams frames to one client, beginning with the latest.
func (server *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	id, sub := server.subscribe()
	defer server.unsubscribe(id)

	cli, err := fastview.NewClient(sub, server.latest.Load(), server.opts, w, r)
	if err != nil {
		slog.Warn("websocket", "err", err)
		return
	}

	slog.Debug("client connected", "client", id)
	if err := cli.Sync(); err != nil {
		slog.Info("client dropped", "client", id, "err", err)
		return
	}
	slog.Debug("client disconnected", "client", id)
}
