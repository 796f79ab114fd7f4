package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"parley/internal/metrics"
	"parley/internal/realtime"
	"parley/internal/router"
	v1 "parley/shared/contracts/chat/v1"
)

func registerHTTP(
	mux *http.ServeMux,
	log Logger,
	cfg Config,
	dbPool *pgxpool.Pool,
	dbEnabled bool,
	ws *realtime.WSGateway,
	rt *router.Router,
	m *metrics.Metrics,
) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.ReadinessRequireDB && !dbEnabled {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		if dbEnabled && dbPool != nil {
			if err := PingDB(r.Context(), dbPool, 2*time.Second); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				log.Info("readyz.db.not_ready", "err", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	mux.Handle("/metrics", m.Handler())

	mux.HandleFunc("GET /chat-history/{userPublicID}/{targetPublicID}", chatHistoryHandler(log, rt))

	mux.HandleFunc("/ws", ws.HandleWS)
}

// chatHistoryHandler serves the read-only history query outside the socket
// flow. Same semantics as fetch-chat-history except no lazy channel creation:
// 404 on unknown identity, 200 with an empty list when no channel exists.
func chatHistoryHandler(log Logger, rt *router.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userPublicID := r.PathValue("userPublicID")
		targetPublicID := r.PathValue("targetPublicID")

		msgs, err := rt.HistoryBetween(r.Context(), userPublicID, targetPublicID)
		if err != nil {
			if errors.Is(err, router.ErrIdentityNotFound) {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "one or both users not found"})
				return
			}
			log.Error("http.chat_history.fail", "err", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch chat history"})
			return
		}

		writeJSON(w, http.StatusOK, v1.ChatHistoryPayload{Messages: msgs})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
