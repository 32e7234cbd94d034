package main

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

type outbound struct {
	msgType int
	text    []byte
}

type connOptions struct {
	sendBuffer   int
	inboundRate  rate.Limit
	inboundBurst int
}

func newConnOptions(cfg *Config) connOptions {
	return connOptions{
		sendBuffer:   cfg.SendBuffer,
		inboundRate:  rate.Limit(cfg.InboundRate),
		inboundBurst: cfg.InboundBurst,
	}
}

// connection is one relay client. Its group membership lives in the hub's
// registry, not here.
type connection struct {
	id    string
	w     websocketManager
	h     *hub
	pings *mTicker
	send  chan outbound
	log   *slog.Logger

	// inbound is nil when inbound messages are not rate limited.
	inbound *rate.Limiter

	closed    atomic.Bool
	closeOnce sync.Once
}

func newConnection(w websocketManager, h *hub, pings *mTicker, opts connOptions) *connection {
	id := uuid.NewString()
	c := &connection{
		id:    id,
		w:     w,
		h:     h,
		pings: pings,
		send:  make(chan outbound, opts.sendBuffer),
		log:   withConn(id),
	}
	if opts.inboundRate > 0 {
		c.inbound = rate.NewLimiter(opts.inboundRate, opts.inboundBurst)
	}
	return c
}

func (c *connection) run() {
	if !c.h.send(command{cmd: OPEN, conn: c}) {
		c.closeTransport()
		return
	}
	incr("websockets", 1)
	c.log.Info("connection opened")
	defer func() {
		decr("websockets", 1)
		c.h.send(command{cmd: CLOSE, conn: c})
		c.log.Info("connection closed")
	}()
	go c.writer()
	c.reader()
}

func (c *connection) isOpen() bool {
	return !c.closed.Load()
}

// closeTransport closes the underlying websocket. The reader then fails and
// runs the normal close path.
func (c *connection) closeTransport() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.w.wsClose()
	})
}

func (c *connection) reader() {
	c.w.wsSetReadLimit()
	c.w.wsSetReadDeadline()
	c.w.wsSetPongHandler()
	for {
		if err := c.readMessage(); err != nil {
			c.onError(err)
			break
		}
	}
	c.closeTransport()
}

// readMessage reads one frame and hands it to the hub. Only transport errors
// are returned; a bad message is dropped without ending the connection.
func (c *connection) readMessage() error {
	msgType, text, err := c.w.wsReadMessage()
	if err != nil {
		return err
	}
	mark("conn.recv", 1)

	if c.inbound != nil && !c.inbound.AllowN(c.h.clock.Now(), 1) {
		mark("drops.ratelimited", 1)
		c.log.Debug("inbound rate exceeded, dropping message")
		return nil
	}

	groupID, err := c.h.codec.group(text)
	if err != nil {
		mark("drops.malformed", 1)
		c.log.Warn("dropping message", slog.Any("error", err))
		return nil
	}

	c.h.send(command{cmd: MESSAGE, conn: c, group: groupID, text: text, msgType: msgType})
	return nil
}

// onError reports a receive failure. It does not touch group membership;
// that happens when the connection closes.
func (c *connection) onError(err error) {
	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
		c.log.Warn("transport error", slog.Any("error", &TransportError{ConnID: c.id, Op: "read", Err: err}))
		return
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		c.log.Debug("peer closed connection", slog.Int("code", closeErr.Code))
		return
	}
	if c.isOpen() {
		c.log.Debug("read ended", slog.Any("error", err))
	}
}

func (c *connection) writer() {
	sub := c.pings.subscribe()
	defer c.pings.unsubscribe(sub)
	pings := sub.tick

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.w.wsSetWriteDeadline()
				c.w.wsWriteMessage(websocket.CloseMessage, []byte{})
				c.closeTransport()
				return
			}
			c.w.wsSetWriteDeadline()
			if err := c.w.wsWriteMessage(msg.msgType, msg.text); err != nil {
				c.fail("write", err)
				return
			}
			mark("conn.send", 1)
		case _, ok := <-pings:
			if !ok {
				pings = nil
				continue
			}
			c.w.wsSetWriteDeadline()
			if err := c.w.wsWriteMessage(websocket.PingMessage, nil); err != nil {
				c.fail("ping", err)
				return
			}
		}
	}
}

func (c *connection) fail(op string, err error) {
	if c.isOpen() {
		c.log.Warn("transport error", slog.Any("error", &TransportError{ConnID: c.id, Op: op, Err: err}))
	}
	c.closeTransport()
}
