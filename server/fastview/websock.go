package fastview

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
)

// ErrSockCongestion indicates there are too many waiters on the socket for a given op.
var ErrSockCongestion = errors.New("sock op failed due to congestion")

const (
	readDeadline  = time.Second
	writeDeadline = time.Second
)

// websock is the transport plumbing under Client, shared by every publisher: gorilla
// connections allow one concurrent reader and one concurrent writer, which it enforces.
type websock struct {
	// Semaphores of capacity one.
	readSem     chan struct{}
	writeSem    chan struct{}
	ws          *websocket.Conn
	gracePeriod time.Duration
}

func newWebSocket(ws *websocket.Conn, gracePeriod time.Duration) *websock {
	return &websock{
		readSem:     make(chan struct{}, 1),
		writeSem:    make(chan struct{}, 1),
		ws:          ws,
		gracePeriod: gracePeriod,
	}
}

// Close sends a close frame and closes the connection after the grace period.
// The reader may still hold its semaphore while blocked in a read, so only the
// write side is acquired; closing the connection unblocks the reader.
func (sock *websock) Close() {
	sock.writeSem <- struct{}{}
	defer func() { <-sock.writeSem }()

	_ = sock.ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = sock.ws.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	time.Sleep(sock.gracePeriod)
	sock.ws.Close()
}

// Read serializes read operations on the websocket.
func (sock *websock) Read(ctx context.Context, readFn func(*websocket.Conn) error) error {
	return sock.exclusive(ctx, sock.readSem, readDeadline, readFn)
}

// Write serializes write operations to the websocket.
func (sock *websock) Write(ctx context.Context, writeFn func(*websocket.Conn) error) error {
	return sock.exclusive(ctx, sock.writeSem, writeDeadline, writeFn)
}

// exclusive runs fn while holding sem. Giving up on ctx is not an error; waiting
// longer than deadline for the semaphore is.
func (sock *websock) exclusive(
	ctx context.Context,
	sem chan struct{},
	deadline time.Duration,
	fn func(*websocket.Conn) error,
) error {
	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil
	case sem <- struct{}{}:
		defer func() { <-sem }()
		return fn(sock.ws)
	case <-timer.C:
		return ErrSockCongestion
	}
}
