package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cadre-oss/hearth/internal/agent"
	apperrors "github.com/cadre-oss/hearth/internal/errors"
	"github.com/cadre-oss/hearth/internal/memory"
)

// --- Helpers ---

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, status int, msg string) {
	jsonResponse(w, status, map[string]string{"error": msg})
}

// engineError maps an engine error to a status code and a JSON body carrying
// the error code and suggestion.
func engineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := apperrors.AsCode(err)
	switch code {
	case apperrors.CodeInputTooLarge:
		status = http.StatusRequestEntityTooLarge
	case apperrors.CodeBackendUnavailable, apperrors.CodeStorageUnavailable, apperrors.CodeEmbeddingUnavailable:
		status = http.StatusServiceUnavailable
	}
	body := map[string]string{"error": err.Error()}
	if code != "" {
		body["code"] = code
	}
	if s := apperrors.Suggestion(err); s != "" {
		body["suggestion"] = s
	}
	jsonResponse(w, status, body)
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// --- Health ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"version":  s.version,
		"persona":  s.engine.Persona().Name,
		"sessions": s.sessions.Len(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var (
		stats *agent.Stats
		err   error
	)
	if id := r.URL.Query().Get("session_id"); id != "" {
		sess, ok := s.sessions.Get(id)
		if !ok {
			jsonError(w, http.StatusNotFound, "session not found")
			return
		}
		stats, err = s.engine.SessionStats(r.Context(), sess)
	} else {
		stats, err = s.engine.Stats(r.Context())
	}
	if err != nil {
		engineError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, stats)
}

// --- Facts ---

type addFactRequest struct {
	Text     string `json:"text"`
	Category string `json:"category,omitempty"`
}

func (s *Server) handleListFacts(w http.ResponseWriter, r *http.Request) {
	facts, err := s.engine.ListFacts(r.Context())
	if err != nil {
		engineError(w, err)
		return
	}
	if facts == nil {
		facts = []memory.Fact{}
	}
	jsonResponse(w, http.StatusOK, facts)
}

func (s *Server) handleAddFact(w http.ResponseWriter, r *http.Request) {
	var req addFactRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		jsonError(w, http.StatusBadRequest, "text is required")
		return
	}
	f, err := s.engine.AddFact(r.Context(), req.Text, memory.Category(req.Category))
	if err != nil {
		engineError(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, f)
}

func (s *Server) handleSearchFacts(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		jsonError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	facts, err := s.engine.SearchFacts(r.Context(), q)
	if err != nil {
		engineError(w, err)
		return
	}
	if facts == nil {
		facts = []memory.ScoredFact{}
	}
	jsonResponse(w, http.StatusOK, facts)
}

func (s *Server) handleRecentEpisodes(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit: %q", v))
			return
		}
		limit = n
	}
	eps, err := s.engine.RecentEpisodes(r.Context(), limit)
	if err != nil {
		engineError(w, err)
		return
	}
	if eps == nil {
		eps = []memory.Episode{}
	}
	jsonResponse(w, http.StatusOK, eps)
}

// --- Sessions ---

type sessionRequest struct {
	Speaker string `json:"speaker,omitempty"`
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
	Speaker   string `json:"speaker,omitempty"`
	Address   string `json:"address,omitempty"`
	Known     bool   `json:"known"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	sess := s.sessions.Create(req.Speaker)
	sp := sess.Speaker()
	jsonResponse(w, http.StatusCreated, sessionResponse{SessionID: sess.ID, Speaker: sp.Name, Address: sp.Address, Known: sp.Known})
}

func (s *Server) handleSetSpeaker(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ok := s.sessions.Get(id)
	if !ok {
		jsonError(w, http.StatusNotFound, fmt.Sprintf("session not found: %s", id))
		return
	}
	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	sp := s.engine.SetSpeaker(sess, req.Speaker)
	jsonResponse(w, http.StatusOK, sessionResponse{SessionID: sess.ID, Speaker: sp.Name, Address: sp.Address, Known: sp.Known})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.sessions.End(id) {
		jsonError(w, http.StatusNotFound, fmt.Sprintf("session not found: %s", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Chat ---

type chatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Speaker   string `json:"speaker,omitempty"`
	Input     string `json:"input"`
}

type chatResponse struct {
	SessionID     string       `json:"session_id"`
	Reply         string       `json:"reply"`
	Backend       string       `json:"backend"`
	ContextTokens int          `json:"context_tokens"`
	Degraded      []string     `json:"degraded,omitempty"`
	Fact          *memory.Fact `json:"fact,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		jsonError(w, http.StatusBadRequest, "input is required")
		return
	}

	var session *agent.Session
	if req.SessionID == "" {
		session = s.sessions.Create(req.Speaker)
	} else {
		var ok bool
		if session, ok = s.sessions.Get(req.SessionID); !ok {
			jsonError(w, http.StatusNotFound, fmt.Sprintf("session not found: %s", req.SessionID))
			return
		}
	}

	reply, err := s.engine.Chat(r.Context(), session, req.Input)
	if err != nil {
		engineError(w, err)
		return
	}

	resp := chatResponse{
		SessionID:     session.ID,
		Reply:         reply.Text,
		Backend:       reply.Backend,
		ContextTokens: reply.Context.Total,
		Fact:          reply.Fact,
	}
	for _, d := range reply.Context.Degraded {
		resp.Degraded = append(resp.Degraded, d.Tier)
	}
	jsonResponse(w, http.StatusOK, resp)
}

// --- SSE ---

func (s *Server) handleSSEEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	clientID := uuid.New().String()
	client := s.broker.Subscribe(r.Context(), clientID, r.URL.Query().Get("session_id"))

	data, _ := json.Marshal(map[string]string{"type": "connected", "client_id": clientID})
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()

	for ev := range client.Events {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
}
