package api

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter mounts the admin API, probes, metrics and, when ws is non-nil,
// the client channel on /ws.
func NewRouter(h *Handlers, ws http.Handler) http.Handler {
    mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", h.HandleReady)
	mux.Handle("/metrics", promhttp.Handler())
	if ws != nil {
		mux.Handle("/ws", ws)
	}

	mux.HandleFunc("/admin/context", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.HandleUpdateContext(w, r)
	})

	mux.HandleFunc("/admin/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet { http.Error(w, "method not allowed", http.StatusMethodNotAllowed); return }
		h.HandleHealth(w, r)
	})

	mux.HandleFunc("/admin/sessions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet { http.Error(w, "method not allowed", http.StatusMethodNotAllowed); return }
		h.HandleListSessions(w, r)
	})

    mux.HandleFunc("/admin/sessions/", func(w http.ResponseWriter, r *http.Request) {
		// /admin/sessions/{id}/history
		path := strings.TrimSuffix(r.URL.Path, "/")
		const prefix = "/admin/sessions/"
		if !strings.HasPrefix(path, prefix) {
			http.NotFound(w, r)
			return
		}
		parts := strings.Split(strings.TrimPrefix(path, prefix), "/")
		if len(parts) != 2 || parts[0] == "" {
			http.NotFound(w, r)
			return
		}
		id, tail := parts[0], parts[1]

        switch tail {
        case "history":
            if r.Method != http.MethodGet {
                http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
                return
            }
            h.HandleHistory(w, r, id)
            return
        default:
            http.NotFound(w, r)
            return
        }
    })

    return mux
}
