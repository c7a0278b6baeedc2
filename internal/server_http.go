package internal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"roomchat/internal/storage"
)

const maxHistoryRequest = 200

type historyResponse struct {
	Room     string            `json:"room"`
	Total    *int              `json:"total,omitempty"`
	Messages []storage.Message `json:"messages"`
}

// roomCounter is implemented by stores that can count a room's messages.
type roomCounter interface {
	CountMessages(ctx context.Context, room string) (int, error)
}

// HandleRoomExists answers whether a room currently has anyone in it.
func (s *Server) HandleRoomExists(w http.ResponseWriter, r *http.Request) {
	room := r.URL.Query().Get("room")
	if room == "" {
		http.Error(w, "missing room", http.StatusBadRequest)
		return
	}
	if s.relay.Router().Exists(room) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
		return
	}
	http.Error(w, "not found", http.StatusNotFound)
}

func (s *Server) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if s.limiter != nil && !s.limiter.Allow(clientIP(r)) {
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}
	room := r.URL.Query().Get("room")
	if room == "" {
		writeError(w, http.StatusBadRequest, errors.New("room is required"))
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = min(parsed, maxHistoryRequest)
	}
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, storage.ErrStoreUnavailable)
		return
	}
	messages, err := s.store.RecentMessages(r.Context(), room, limit, true)
	if err != nil {
		s.metrics.IncStoreFailure()
		s.logger.Error("history request failed", "room", room, "err", err)
		writeError(w, http.StatusServiceUnavailable, storage.ErrStoreUnavailable)
		return
	}
	if messages == nil {
		messages = []storage.Message{}
	}
	response := historyResponse{Room: room, Messages: messages}
	if counter, ok := s.store.(roomCounter); ok {
		total, err := counter.CountMessages(r.Context(), room)
		if err != nil {
			s.metrics.IncStoreFailure()
			s.logger.Warn("history count failed", "room", room, "err", err)
		} else {
			response.Total = &total
		}
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) HandleUp(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
