package main

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
	"github.com/rcrowley/go-metrics/exp"
)

type metrics struct {
	log  io.Writer
	reg  gometrics.Registry
	tick time.Duration
}

var m = &metrics{
	log:  slogWriter{},
	reg:  gometrics.NewRegistry(),
	tick: 60 * time.Second,
}

func startMetrics(tick time.Duration) {
	m.tick = tick
	m.start()
}

func finalMetrics() {
	m.writeOnce()
}

func incr(name string, i int64) {
	m.incr(name, i)
}

func decr(name string, i int64) {
	m.decr(name, i)
}

func mark(name string, i int64) {
	m.mark(name, i)
}

func counter(name string) int64 {
	return gometrics.GetOrRegisterCounter(name, m.reg).Count()
}

func meter(name string) int64 {
	return gometrics.GetOrRegisterMeter(name, m.reg).Count()
}

func metricsHandler() http.Handler {
	return exp.ExpHandler(m.reg)
}

func (m *metrics) start() {
	go gometrics.WriteJSON(m.reg, m.tick, m.log)
}

func (m *metrics) writeOnce() {
	gometrics.WriteJSONOnce(m.reg, m.log)
}

func (m *metrics) incr(name string, i int64) {
	gometrics.GetOrRegisterCounter(name, m.reg).Inc(i)
}

func (m *metrics) decr(name string, i int64) {
	gometrics.GetOrRegisterCounter(name, m.reg).Dec(i)
}

func (m *metrics) mark(name string, i int64) {
	gometrics.GetOrRegisterMeter(name, m.reg).Mark(i)
}

// slogWriter routes go-metrics JSON snapshots through the structured logger.
type slogWriter struct{}

func (slogWriter) Write(p []byte) (int, error) {
	logger.Info("metrics", slog.String("snapshot", string(bytes.TrimRight(p, "\r\n"))))
	return len(p), nil
}
