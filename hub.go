package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

type cmdType int

const (
	OPEN cmdType = iota
	MESSAGE
	CLOSE
	PUBLISH
	FIRE
	GROUPS
	STOP
)

type command struct {
	cmd     cmdType
	conn    *connection
	group   string
	text    []byte
	msgType int
	fn      func()
	reply   chan []groupInfo
}

type queue chan command

// relayJob is one broadcast request handed to a throttle. A nil sender means
// nobody in the group is excluded.
type relayJob struct {
	group   string
	sender  *connection
	text    []byte
	msgType int
}

// hub is the single event loop of the relay. Registry, throttles and the set
// of live connections are only touched from run.
type hub struct {
	queue    queue
	done     chan struct{}
	exited   chan struct{}
	registry *registry
	conns    connections
	codec    envelopeCodec
	clock    clockwork.Clock
	interval time.Duration
	// global is set when every group shares one cooldown.
	global *throttle[relayJob]
}

func newHub(clock clockwork.Clock, cfg *Config) *hub {
	h := &hub{
		queue:    make(queue, 256),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
		registry: newRegistry(),
		conns:    make(connections),
		codec:    envelopeCodec{groupField: cfg.GroupField, countField: cfg.CountField},
		clock:    clock,
		interval: cfg.ThrottleInterval,
	}
	if cfg.ThrottleScope == scopeGlobal {
		h.global = h.newLimiter()
	}
	return h
}

func (h *hub) run() {
	defer close(h.exited)
	for cmd := range h.queue {
		switch cmd.cmd {
		case OPEN:
			h.conns[cmd.conn] = struct{}{}
		case MESSAGE:
			h.message(cmd)
		case CLOSE:
			h.close(cmd.conn)
		case PUBLISH:
			h.publish(cmd)
		case FIRE:
			cmd.fn()
		case GROUPS:
			cmd.reply <- h.registry.list()
		case STOP:
			h.shutdown()
			return
		default:
			panic(fmt.Sprintf("unexpected hub cmd: %v\n", cmd))
		}
	}
}

// send enqueues cmd unless the hub has stopped.
func (h *hub) send(cmd command) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.queue <- cmd:
		return true
	case <-h.done:
		return false
	}
}

// post runs fn on the hub goroutine. Throttle timers use it.
func (h *hub) post(fn func()) {
	h.send(command{cmd: FIRE, fn: fn})
}

// stop shuts the loop down and waits for it to finish.
func (h *hub) stop() {
	if h.send(command{cmd: STOP}) {
		<-h.exited
	}
}

func (h *hub) groups() []groupInfo {
	reply := make(chan []groupInfo, 1)
	if !h.send(command{cmd: GROUPS, reply: reply}) {
		return nil
	}
	select {
	case infos := <-reply:
		return infos
	case <-h.done:
		return nil
	}
}

func (h *hub) newLimiter() *throttle[relayJob] {
	return newThrottle(h.clock, h.interval, h.broadcast, h.post)
}

func (h *hub) limiterFor(g *group) *throttle[relayJob] {
	if h.global != nil {
		return h.global
	}
	if g.limiter == nil {
		g.limiter = h.newLimiter()
	}
	return g.limiter
}

// message records the sender's membership before relaying, so the injected
// count already includes the sender.
func (h *hub) message(cmd command) {
	if _, ok := h.conns[cmd.conn]; !ok {
		return
	}
	g := h.registry.join(cmd.group, cmd.conn)
	h.limiterFor(g).call(relayJob{
		group:   cmd.group,
		sender:  cmd.conn,
		text:    cmd.text,
		msgType: cmd.msgType,
	})
}

func (h *hub) publish(cmd command) {
	g, ok := h.registry.lookup(cmd.group)
	if !ok {
		mark("drops.nogroup", 1)
		return
	}
	h.limiterFor(g).call(relayJob{group: cmd.group, text: cmd.text, msgType: cmd.msgType})
}

func (h *hub) close(c *connection) {
	if _, ok := h.conns[c]; !ok {
		return
	}
	delete(h.conns, c)
	for _, g := range h.registry.leave(c) {
		g.dispose()
		withGroup(g.id).Debug("group deleted")
	}
	close(c.send)
}

func (h *hub) shutdown() {
	close(h.done)
	if h.global != nil {
		h.global.stop()
	}
	for c := range h.conns {
		for _, g := range h.registry.leave(c) {
			g.dispose()
		}
		c.closeTransport()
		close(c.send)
	}
	h.conns = make(connections)
}

// broadcast is the throttled action: it stamps the live member count on the
// payload and relays it to every open member except the sender.
func (h *hub) broadcast(job relayJob) {
	if err := h.relay(job); err != nil {
		withGroup(job.group).Error("relay failed", slog.Any("error", err))
	}
}

func (h *hub) relay(job relayJob) error {
	members := h.registry.membersExcept(job.group, job.sender)
	if len(members) == 0 {
		if h.registry.size(job.group) == 0 {
			mark("drops.nogroup", 1)
		}
		return nil
	}

	text, err := h.codec.withCount(job.text, h.registry.size(job.group))
	if err != nil {
		return fmt.Errorf("rewrite envelope: %w", err)
	}

	msg := outbound{msgType: job.msgType, text: text}
	for _, c := range members {
		if !c.isOpen() {
			continue
		}
		h.deliver(c, msg)
	}
	return nil
}

func (h *hub) deliver(c *connection, msg outbound) {
	select {
	case c.send <- msg:
	default:
		// The consumer is too slow; its close path cleans up membership.
		mark("drops.slow", 1)
		c.log.Warn("send queue full, closing connection")
		c.closeTransport()
	}
}
