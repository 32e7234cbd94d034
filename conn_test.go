package main

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type mockRead struct {
	msgType int
	msg     []byte
	err     error
}

type mockWrite struct {
	msgType int
	payload []byte
}

type mockWs struct {
	mu     sync.Mutex
	reads  []mockRead
	writes []mockWrite
	closed bool
	// writeErr fails every write once set.
	writeErr error
	written  chan mockWrite
}

func newMockWs(reads ...mockRead) *mockWs {
	return &mockWs{reads: reads, written: make(chan mockWrite, 16)}
}

func (mq *mockWs) wsSetReadLimit() {}

func (mq *mockWs) wsSetReadDeadline() {}

func (mq *mockWs) wsSetPongHandler() {}

func (mq *mockWs) wsSetWriteDeadline() {}

func (mq *mockWs) wsClose() {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	mq.closed = true
}

func (mq *mockWs) wsReadMessage() (int, []byte, error) {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	if len(mq.reads) == 0 {
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
	r := mq.reads[0]
	mq.reads = mq.reads[1:]
	return r.msgType, r.msg, r.err
}

func (mq *mockWs) wsWriteMessage(messageType int, payload []byte) error {
	mq.mu.Lock()
	err := mq.writeErr
	w := mockWrite{msgType: messageType, payload: payload}
	if err == nil {
		mq.writes = append(mq.writes, w)
	}
	mq.mu.Unlock()
	if err == nil {
		mq.written <- w
	}
	return err
}

func (mq *mockWs) isClosed() bool {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	return mq.closed
}

// idlePings never ticks on its own.
var idlePings = newMTicker(clockwork.NewFakeClock(), time.Hour)

func newTestConnection(h *hub) *connection {
	return newConnection(newMockWs(), h, idlePings, connOptions{sendBuffer: 16})
}

func nextCommand(t *testing.T, h *hub) command {
	t.Helper()
	select {
	case cmd := <-h.queue:
		return cmd
	default:
		t.Fatal("Expectation: a queued command, Received: none")
		return command{}
	}
}

func nextWrite(t *testing.T, mq *mockWs) mockWrite {
	t.Helper()
	select {
	case w := <-mq.written:
		return w
	case <-time.After(time.Second):
		t.Fatal("Expectation: a write, Received: none")
		return mockWrite{}
	}
}

func TestConnReadMessage(t *testing.T) {
	h, _ := testHub(t, testConfig())
	conn := newTestConnection(h)

	// Assert on error, do nothing
	conn.w = newMockWs(mockRead{err: errors.New("Message Read Error")})
	require.Error(t, conn.readMessage())
	assert.Empty(t, h.queue)

	// A valid message is queued for the hub with its group
	conn.w = newMockWs(mockRead{msgType: websocket.TextMessage, msg: []byte(`{"group":"room1","session":"s"}`)})
	require.NoError(t, conn.readMessage())
	cmd := nextCommand(t, h)
	assert.Equal(t, MESSAGE, cmd.cmd)
	assert.Equal(t, "room1", cmd.group)
	assert.Equal(t, conn, cmd.conn)
	assert.Equal(t, websocket.TextMessage, cmd.msgType)
	assert.Equal(t, `{"group":"room1","session":"s"}`, string(cmd.text))
}

func TestConnReadMessageDropsMalformed(t *testing.T) {
	h, _ := testHub(t, testConfig())
	conn := newTestConnection(h)
	before := meter("drops.malformed")

	for _, raw := range []string{"banana", `{"session":"s"}`, `[1,2]`, `{"group":5}`} {
		conn.w = newMockWs(mockRead{msgType: websocket.TextMessage, msg: []byte(raw)})
		require.NoError(t, conn.readMessage(), raw)
	}

	assert.Empty(t, h.queue)
	assert.Equal(t, before+4, meter("drops.malformed"))
	assert.True(t, conn.isOpen())
}

func TestConnReadMessageRateLimited(t *testing.T) {
	h, _ := testHub(t, testConfig())
	conn := newConnection(newMockWs(), h, idlePings,
		connOptions{sendBuffer: 16, inboundRate: rate.Limit(1), inboundBurst: 2})

	msg := mockRead{msgType: websocket.TextMessage, msg: []byte(`{"group":"room1"}`)}
	conn.w = newMockWs(msg, msg, msg)
	for i := 0; i < 3; i++ {
		require.NoError(t, conn.readMessage())
	}

	assert.Len(t, h.queue, 2)
}

func TestConnReaderRunsClosePath(t *testing.T) {
	h, _ := testHub(t, testConfig())
	mq := newMockWs(
		mockRead{msgType: websocket.TextMessage, msg: []byte(`not json`)},
		mockRead{msgType: websocket.TextMessage, msg: []byte(`{"group":"room1"}`)},
	)
	conn := newConnection(mq, h, idlePings, connOptions{sendBuffer: 16})

	conn.reader()

	// the malformed message did not end the connection
	cmd := nextCommand(t, h)
	assert.Equal(t, MESSAGE, cmd.cmd)
	assert.Empty(t, h.queue)
	assert.True(t, mq.isClosed())
	assert.False(t, conn.isOpen())
}

func TestConnRun(t *testing.T) {
	h, _ := testHub(t, testConfig())
	go h.run()
	defer h.stop()

	mq := newMockWs(mockRead{msgType: websocket.TextMessage, msg: []byte(`{"group":"room1"}`)})
	conn := newConnection(mq, h, idlePings, connOptions{sendBuffer: 16})

	conn.run()

	// run returns once the peer is gone; the hub has been told to close it
	assert.Empty(t, h.groups())
	w := nextWrite(t, mq)
	assert.Equal(t, websocket.CloseMessage, w.msgType)
}

func TestConnWriter(t *testing.T) {
	h, _ := testHub(t, testConfig())
	clock := clockwork.NewFakeClock()
	pings := newMTicker(clock, 2*time.Second)
	defer pings.stop()
	mq := newMockWs()
	conn := newConnection(mq, h, pings, connOptions{sendBuffer: 16})

	done := make(chan struct{})
	go func() {
		conn.writer()
		close(done)
	}()

	// On receipt of valid message, message written with its frame type
	conn.send <- outbound{msgType: websocket.TextMessage, text: []byte("bananas")}
	w := nextWrite(t, mq)
	assert.Equal(t, "bananas", string(w.payload))
	assert.Equal(t, websocket.TextMessage, w.msgType)

	// On timed intervals, ping with nil message
	require.Eventually(t, func() bool { return pings.size() == 1 }, time.Second, time.Millisecond)
	clock.Advance(2 * time.Second)
	w = nextWrite(t, mq)
	assert.Equal(t, websocket.PingMessage, w.msgType)
	assert.Empty(t, w.payload)

	// Closing send writes a close frame and ends the writer
	close(conn.send)
	w = nextWrite(t, mq)
	assert.Equal(t, websocket.CloseMessage, w.msgType)
	<-done
	assert.True(t, mq.isClosed())
	assert.Equal(t, 0, pings.size())
}

func TestConnWriterFailureClosesTransport(t *testing.T) {
	h, _ := testHub(t, testConfig())
	mq := newMockWs()
	mq.writeErr = errors.New("broken pipe")
	conn := newConnection(mq, h, idlePings, connOptions{sendBuffer: 16})

	done := make(chan struct{})
	go func() {
		conn.writer()
		close(done)
	}()
	conn.send <- outbound{msgType: websocket.TextMessage, text: []byte("bananas")}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("writer did not stop after a failed write")
	}
	assert.False(t, conn.isOpen())
	assert.True(t, mq.isClosed())
}

func TestConnOnErrorLeavesRegistryAlone(t *testing.T) {
	h, _ := testHub(t, testConfig())
	conn := open(h)
	h.registry.join("room1", conn)

	conn.onError(&websocket.CloseError{Code: websocket.CloseAbnormalClosure})
	conn.onError(errors.New("i/o timeout"))

	assert.Equal(t, 1, h.registry.size("room1"))
	assert.True(t, conn.isOpen())
}
