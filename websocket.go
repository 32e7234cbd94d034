package main

import (
	"time"

	"github.com/gorilla/websocket"
)

type wsLimits struct {
	// Time allowed to write a message to the peer.
	writeWait time.Duration

	// Time allowed to read the next pong message from the peer.
	pongWait time.Duration

	// Maximum message size allowed from peer.
	maxMessageSize int64
}

func newWsLimits(cfg *Config) wsLimits {
	return wsLimits{
		writeWait:      cfg.WriteWait,
		pongWait:       cfg.PongWait,
		maxMessageSize: cfg.MaxMessageSize,
	}
}

type websocketManager interface {
	wsSetReadLimit()
	wsSetReadDeadline()
	wsSetPongHandler()
	wsReadMessage() (int, []byte, error)
	wsSetWriteDeadline()
	wsWriteMessage(int, []byte) error
	wsClose()
}

type websocketInteractor struct {
	ws     *websocket.Conn
	limits wsLimits
}

func (w websocketInteractor) wsSetReadLimit() {
	w.ws.SetReadLimit(w.limits.maxMessageSize)
}

func (w websocketInteractor) wsSetReadDeadline() {
	w.ws.SetReadDeadline(time.Now().Add(w.limits.pongWait))
}

func (w websocketInteractor) wsSetPongHandler() {
	w.ws.SetPongHandler(func(string) error { w.wsSetReadDeadline(); return nil })
}

func (w websocketInteractor) wsClose() {
	w.ws.Close()
}

func (w websocketInteractor) wsReadMessage() (messageType int, p []byte, err error) {
	return w.ws.ReadMessage()
}

func (w websocketInteractor) wsSetWriteDeadline() {
	w.ws.SetWriteDeadline(time.Now().Add(w.limits.writeWait))
}

func (w websocketInteractor) wsWriteMessage(messageType int, payload []byte) error {
	return w.ws.WriteMessage(messageType, payload)
}
