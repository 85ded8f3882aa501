package web

import (
	"embed"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"

	"moltfarm/internal/shared/logger"
	"moltfarm/internal/shared/types"
)

//go:embed static/index.html
var staticFiles embed.FS

// StatusProvider supplies the dashboard with a read-only snapshot of every
// bot's state.
type StatusProvider interface {
	All() map[string]types.BotStatus
}

// basicAuthMiddleware enforces HTTP Basic Authentication when web_user and
// web_password are both configured; otherwise it is a no-op.
func basicAuthMiddleware(next http.Handler, user, pass string) http.Handler {
	if user == "" || pass == "" {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Unauthorized.\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// StartServer starts the optional local status dashboard. Disabled when
// web_port is 0 or unset.
func StartServer(wg *sync.WaitGroup, cfg types.WebConf, provider StatusProvider, hub *Hub) {
	if cfg.WebPort <= 0 {
		logger.Info().Msg("Dashboard is disabled (web_port is 0 or not set).")
		return
	}

	mux := http.NewServeMux()

	statusHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(provider.All()); err != nil {
			logger.Error().Err(err).Msg("Failed to encode status snapshot.")
		}
	})
	mux.Handle("/api/status", basicAuthMiddleware(statusHandler, cfg.WebUser, cfg.WebPassword))

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	})

	rootHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		index, err := staticFiles.ReadFile("static/index.html")
		if err != nil {
			http.Error(w, "Could not load index.html", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(index)
	})
	mux.Handle("/", basicAuthMiddleware(rootHandler, cfg.WebUser, cfg.WebPassword))

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.WebPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error().Err(err).Str("addr", addr).Msg("Failed to start dashboard listener.")
		return
	}

	logger.Info().Msgf("Dashboard is listening on http://%s", addr)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := http.Serve(listener, mux); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("Dashboard server error.")
		}
	}()
}
