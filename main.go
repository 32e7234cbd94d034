package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"

	"github.com/facebookgo/httpdown"
	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	initLogger(cfg.LogLevel, cfg.LogFormat)

	// Prepare the stoppable HTTP server
	server := &http.Server{
		Addr: cfg.addr(),
	}
	hd := &httpdown.HTTP{
		StopTimeout: cfg.StopTimeout,
		KillTimeout: cfg.KillTimeout,
	}

	flag.StringVar(&server.Addr, "addr", server.Addr, "http service address")
	flag.Parse()

	r := newRelay(clockwork.NewRealClock(), cfg)
	defer r.stop()

	server.Handler = r.handler
	startMetrics(cfg.MetricsTick)
	defer finalMetrics()

	logger.Info("relay listening",
		"addr", server.Addr,
		"throttle_interval", cfg.ThrottleInterval,
		"throttle_scope", cfg.ThrottleScope)
	if err := httpdown.ListenAndServe(server, hd); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("relay stopped")
}

// relay bundles the hub, the shared ping ticker and the routes in front of
// them.
type relay struct {
	hub     *hub
	pings   *mTicker
	handler http.Handler
}

func newRelay(clock clockwork.Clock, cfg *Config) *relay {
	h := newHub(clock, cfg)
	go h.run()
	pings := newMTicker(clock, cfg.PingPeriod)
	return &relay{
		hub:     h,
		pings:   pings,
		handler: newHandler(h, pings, cfg),
	}
}

func (r *relay) stop() {
	r.hub.stop()
	r.pings.stop()
}

func newHandler(h *hub, pings *mTicker, cfg *Config) http.Handler {
	handler := mux.NewRouter()

	// Route websocket requests, whatever the path
	handler.NewRoute().HeadersRegexp(
		// Requests with these headers will use this handler
		"Connection", "(?i)upgrade",
		"Upgrade", "(?i)websocket",
	).Handler(newWsHandler(h, pings, cfg))

	handler.Methods("GET").Path("/healthz").HandlerFunc(healthHandler)
	handler.Methods("GET").Path("/debug/metrics").Handler(metricsHandler())
	handler.Methods("GET").Path("/groups").Handler(groupsHandler{h: h})
	handler.Methods("POST").Path("/groups/{group}").Handler(postHandler{h: h})

	// Any other GET serves the browser test client
	handler.Methods("GET").Handler(getHandler{groupField: cfg.GroupField})

	return handler
}
