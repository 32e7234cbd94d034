package main

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	groupLenMin = 1
	groupLenMax = 256
)

type wsHandler struct {
	h        *hub
	pings    *mTicker
	upgrader *websocket.Upgrader
	limits   wsLimits
	opts     connOptions
}

func newWsHandler(h *hub, pings *mTicker, cfg *Config) wsHandler {
	return wsHandler{
		h:     h,
		pings: pings,
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(cfg.AllowedOrigin),
		},
		limits: newWsLimits(cfg),
		opts:   newConnOptions(cfg),
	}
}

// checkOrigin accepts any origin when allowed is empty.
func checkOrigin(allowed string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		if allowed == "" {
			return true
		}
		return r.Header.Get("Origin") == allowed
	}
}

func (wsh wsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := wsh.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	c := newConnection(websocketInteractor{ws: ws, limits: wsh.limits}, wsh.h, wsh.pings, wsh.opts)
	c.run()
}

type getHandler struct {
	groupField string
}

func (gh getHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	webTemplate.Execute(w, templateArgs{GroupField: gh.groupField})
}

type postHandler struct {
	h *hub
}

// ServeHTTP publishes the request body to the group named in the path. Every
// member receives it; there is no sender to exclude.
func (ph postHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["group"]
	if !validateGroup(w, groupID) {
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		sendBadRequestError(w, "Unable to read POST body.")
		return
	}
	if _, err := ph.h.codec.parse(body); err != nil {
		sendBadRequestError(w, "Body must be a JSON object.")
		return
	}
	if !ph.h.send(command{cmd: PUBLISH, group: groupID, text: body, msgType: websocket.TextMessage}) {
		http.Error(w, "Relay is shutting down.", http.StatusServiceUnavailable)
		return
	}
	w.Write([]byte("OK\n"))
}

type groupsHandler struct {
	h *hub
}

func (gh groupsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	infos := gh.h.groups()
	if infos == nil {
		infos = []groupInfo{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(infos)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok\n"))
}

func validateGroup(w http.ResponseWriter, groupID string) bool {
	if !utf8.ValidString(groupID) {
		sendBadRequestError(w, "Group must be valid Unicode (UTF-8).")
		return false
	}
	n := utf8.RuneCountInString(groupID)
	if !(groupLenMin <= n && n <= groupLenMax) {
		sendBadRequestError(w, fmt.Sprintf(
			"Group length must be %d-%d Unicode characters (UTF-8).",
			groupLenMin, groupLenMax))
		return false
	}
	return true
}

func sendBadRequestError(w http.ResponseWriter, str string) {
	http.Error(w,
		fmt.Sprintf("Error: bad request. %s", str),
		http.StatusBadRequest)
}

type templateArgs struct {
	GroupField string
}

var webTemplate = template.Must(template.New("webTemplate").Parse(`<!DOCTYPE html>
<html>
<head>
<title>relayhub</title>
<style>
body { font-family: monospace; margin: 1em; }
#log { border: 1px solid #999; height: 20em; overflow: auto; padding: 0.5em; }
</style>
</head>
<body>
<h3>relayhub test client</h3>
<form id="form">
    <input type="text" id="group" placeholder="group" size="24"/>
    <input type="text" id="extra" placeholder='{"session":"s1"}' size="40"/>
    <input type="submit" value="Send"/>
</form>
<div id="log"></div>
<script>
(function() {
    var log = document.getElementById("log");
    function appendLog(text) {
        var d = document.createElement("div");
        d.textContent = text;
        log.appendChild(d);
        log.scrollTop = log.scrollHeight;
    }
    var scheme = location.protocol === "https:" ? "wss://" : "ws://";
    var conn = new WebSocket(scheme + location.host + location.pathname);
    conn.onclose = function() { appendLog("Connection closed."); };
    conn.onmessage = function(evt) { appendLog(evt.data); };
    document.getElementById("form").onsubmit = function(e) {
        e.preventDefault();
        var msg = {};
        var extra = document.getElementById("extra").value;
        if (extra) {
            try { msg = JSON.parse(extra); } catch (err) { appendLog("extra: " + err); return; }
        }
        msg[{{.GroupField}}] = document.getElementById("group").value;
        conn.send(JSON.stringify(msg));
    };
})();
</script>
</body>
</html>
`))
