// Command gatewayd is the composition root: it wires the Store, Hub,
// Dispatcher, Metrics, retention Sweeper and both transports together and
// serves them over one HTTP listener (§4.11).
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/handlers"

	"github.com/ircultra/gateway/internal/color"
	"github.com/ircultra/gateway/internal/config"
	"github.com/ircultra/gateway/internal/dispatch"
	"github.com/ircultra/gateway/internal/hub"
	"github.com/ircultra/gateway/internal/id"
	"github.com/ircultra/gateway/internal/metrics"
	"github.com/ircultra/gateway/internal/ratelimit"
	"github.com/ircultra/gateway/internal/retention"
	"github.com/ircultra/gateway/internal/store"
	"github.com/ircultra/gateway/internal/wireadaptor"
)

func main() {
	cfg := config.Load()

	if err := id.Init(1); err != nil {
		log.Fatalf("gatewayd: id init: %v", err)
	}

	st, err := store.Open(cfg.StatePath)
	if err != nil {
		log.Fatalf("gatewayd: store open: %v", err)
	}
	if err := config.LoadBotSeeds(cfg.BotSeedPath, st); err != nil {
		log.Printf("gatewayd: bot seed load failed: %v", err)
	}

	m := metrics.New()
	h := hub.New(m)
	colors := color.NewAllocator()
	d := dispatch.New(st, h, colors, m, cfg.MOTD)
	h.SetDispatcher(d)

	wa := wireadaptor.New(h, d, st)

	ctx, cancel := context.WithCancel(context.Background())
	sweeper := retention.New(st, cfg.RetentionDays)
	go sweeper.Run(ctx)

	origins := hub.NewOriginPolicy(cfg.AllowedOrigins)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthzHandler)
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/ws", h.ServeWS(origins, ratelimit.DefaultMaxCount, ratelimit.DefaultWindowMs))
	mux.HandleFunc("/webirc", wa.ServeHTTP)
	mux.HandleFunc("/", notFoundHandler)

	addr := cfg.ServerHost + ":" + cfg.ServerPort
	srv := &http.Server{Addr: addr, Handler: handlers.CombinedLoggingHandler(logWriter{}, mux)}

	log.Printf("gatewayd: listening on %s (state=%s retentionDays=%d)", addr, cfg.StatePath, cfg.RetentionDays)

	stop := signalHandler()
	err = listenAndServe(addr, srv, stop, func() {
		cancel()
		if err := st.Shutdown(); err != nil {
			log.Printf("gatewayd: store shutdown flush failed: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("gatewayd: %v", err)
	}
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "not found", http.StatusNotFound)
}

// logWriter adapts the standard logger as the access-log sink for
// gorilla/handlers, matching the teacher's plain log.Printf-based style
// rather than introducing a separate log file.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	log.Print(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
