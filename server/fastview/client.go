// fastview publishes idempotent view updates to web clients over websockets.
package fastview

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/sync/errgroup"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 1 * time.Second
	// Maximum message size allowed from peer.
	maxMessageSize = 8192

	// Defaults for the rate at which updates are sent and the peer is pinged.
	defaultPubResolution  = time.Millisecond * 100
	defaultPingResolution = time.Millisecond * 200
	// The number of pings to tolerate losing before concluding the peer is gone.
	missedPongs = 4
)

var upgrader = websocket.Upgrader{}

// Options tune a client's publication and liveness rates.
type Options struct {
	// Updates arriving faster than this are dropped.
	PubResolution  time.Duration
	PingResolution time.Duration
	// Delay between the close frame and closing the connection.
	CloseGracePeriod time.Duration
}

// DefaultOptions returns the rates used by the frame server.
func DefaultOptions() Options {
	return Options{
		PubResolution:    defaultPubResolution,
		PingResolution:   defaultPingResolution,
		CloseGracePeriod: time.Second,
	}
}

// Client publishes updates unidirectionally to one web client. Updates are expected to be
// idempotent: only the latest needs to arrive to specify the client's state, so those
// received faster than the publication rate are discarded.
type Client[T any] struct {
	updates <-chan T
	initial *T
	pong    chan struct{}
	ws      *websock
	opts    Options
	rootCtx context.Context
}

// NewClient upgrades the request to a websocket. If initial is non-nil it is sent
// before any update so that a fresh client renders immediately.
func NewClient[T any](
	updates <-chan T,
	initial *T,
	opts Options,
	w http.ResponseWriter,
	r *http.Request,
) (*Client[T], error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied to the client.
		return nil, fmt.Errorf("upgrade: %w", err)
	}
	ws.SetReadLimit(maxMessageSize)

	// The handler runs on the reader's goroutine, so it is installed before any reads start.
	pong := make(chan struct{}, 1)
	ws.SetPongHandler(func(_ string) error {
		select {
		case pong <- struct{}{}:
		default:
		}
		return nil
	})

	return &Client[T]{
		updates: updates,
		initial: initial,
		pong:    pong,
		ws:      newWebSocket(ws, opts.CloseGracePeriod),
		opts:    opts,
		rootCtx: r.Context(),
	}, nil
}

// Sync runs the reader, the liveness check, and the publisher until the client leaves,
// the request context is done, or the updates chan closes. It returns nil on a normal
// disconnect. The websocket is closed once any routine stops, which unblocks the reader.
func (cli *Client[T]) Sync() error {
	group, groupCtx := errgroup.WithContext(cli.rootCtx)
	group.Go(func() error {
		<-groupCtx.Done()
		cli.ws.Close()
		return nil
	})
	group.Go(func() error {
		return cli.readMessages(groupCtx)
	})
	group.Go(func() error {
		return cli.pingPong(groupCtx)
	})
	group.Go(func() error {
		return cli.publish(groupCtx)
	})

	err := group.Wait()
	if isClosure(err) {
		return nil
	}
	return err
}

var ErrPongDeadlineExceeded error = errors.New("client disconnect, pong deadline exceeded")

// errUpdatesClosed stops the sibling routines once the publisher runs out of input.
var errUpdatesClosed = errors.New("updates closed")

// pingPong runs the liveness check. It depends on readMessages to dispatch pongs.
func (cli *Client[T]) pingPong(ctx context.Context) error {
	pongWait := cli.opts.PingResolution * missedPongs
	pinger := channerics.NewTicker(ctx.Done(), cli.opts.PingResolution)
	lastPong := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pinger:
			if time.Since(lastPong) > pongWait {
				return ErrPongDeadlineExceeded
			}
			if err := cli.ping(ctx); err != nil {
				return err
			}
		case <-cli.pong:
			lastPong = time.Now()
		}
	}
}

func (cli *Client[T]) ping(ctx context.Context) error {
	return cli.ws.Write(
		ctx,
		func(ws *websocket.Conn) (err error) {
			if err = ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); isError(err) {
				err = fmt.Errorf("ping failed: %T %w", err, err)
			}
			return
		})
}

// readMessages drains client messages so that control frames are processed.
// Read errors are permanent, hence any error tears down the client. A read failing
// because teardown closed the connection is not an error.
func (cli *Client[T]) readMessages(ctx context.Context) error {
	for {
		err := cli.ws.Read(
			ctx,
			func(ws *websocket.Conn) (readErr error) {
				_, _, readErr = ws.ReadMessage()
				return
			})
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (cli *Client[T]) publish(ctx context.Context) error {
	if cli.initial != nil {
		if err := cli.send(ctx, *cli.initial); err != nil {
			return err
		}
	}

	lastSync := time.Now()
	for update := range channerics.OrDone(ctx.Done(), cli.updates) {
		// Drop updates when receiving too quickly.
		if time.Since(lastSync) < cli.opts.PubResolution {
			continue
		}

		lastSync = time.Now()
		if err := cli.send(ctx, update); err != nil {
			return err
		}
	}

	if ctx.Err() != nil {
		return nil
	}
	return errUpdatesClosed
}

func (cli *Client[T]) send(ctx context.Context, update T) error {
	return cli.ws.Write(
		ctx,
		func(ws *websocket.Conn) (writeErr error) {
			if writeErr = ws.SetWriteDeadline(time.Now().Add(writeWait)); writeErr != nil {
				return fmt.Errorf("failed to set deadline: %T %w", writeErr, writeErr)
			}
			if writeErr = ws.WriteJSON(update); isError(writeErr) {
				writeErr = fmt.Errorf("publish failed: %T %w", writeErr, writeErr)
			}
			return
		})
}

func isError(err error) bool {
	return err != nil && websocket.IsUnexpectedCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway)
}

func isClosure(err error) bool {
	return errors.Is(err, errUpdatesClosed) || (err != nil && websocket.IsCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway))
}
