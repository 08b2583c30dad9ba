// Command vectorchatd runs the causal-delivery group chat server: an HTTP
// listener upgrading /ws to websocket chat connections and exposing
// /metrics for Prometheus scraping.
//
// Flag handling follows the teacher's src/server/server.go convention:
// flag.StringVar against package-level defaults, flag.Parse(), and
// a positional-argument fallback for anyone still invoking it the old way.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sfurman3/vectorchat/internal/hub"
	"github.com/sfurman3/vectorchat/internal/logging"
	"github.com/sfurman3/vectorchat/internal/metrics"
	"github.com/sfurman3/vectorchat/internal/transport/ws"
)

var (
	addr        = ":8080"
	defaultRoom = "lobby"
	wsPath      = "/ws"
	metricsPath = "/metrics"
)

func main() {
	flag.StringVar(&addr, "addr", addr, "address to listen on")
	flag.StringVar(&defaultRoom, "room", defaultRoom, "default room assigned to connections that don't name one")
	flag.StringVar(&wsPath, "ws-path", wsPath, "HTTP path the websocket endpoint is served on")
	flag.StringVar(&metricsPath, "metrics-path", metricsPath, "HTTP path the Prometheus metrics endpoint is served on")
	flag.Parse()

	// Positional fallback: "vectorchatd <addr> <room>", for parity with
	// the teacher's "server <id> <numservers> <port>" calling convention.
	if args := flag.Args(); len(args) > 0 {
		addr = args[0]
		if len(args) > 1 {
			defaultRoom = args[1]
		}
	}

	log := logging.New()
	reg := metrics.New()
	h := hub.New(hub.WithDefaultRoom(defaultRoom), hub.WithLogger(log), hub.WithMetrics(reg))

	mux := http.NewServeMux()
	mux.HandleFunc(wsPath, func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Upgrade(w, r)
		if err != nil {
			log.Warnf("websocket upgrade from %s failed: %v", r.RemoteAddr, err)
			return
		}
		sess := h.Accept(conn)
		h.Serve(sess)
	})
	mux.Handle(metricsPath, promhttp.HandlerFor(reg.Gatherer(), promhttp.HandlerOpts{}))

	log.WithFields(map[string]interface{}{
		"addr":         addr,
		"ws_path":      wsPath,
		"default_room": defaultRoom,
	}).Info("starting vectorchatd")

	if err := http.ListenAndServe(addr, mux); err != nil {
		fmt.Fprintln(os.Stderr, "vectorchatd:", err)
		os.Exit(1)
	}
}
