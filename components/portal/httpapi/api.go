package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	portal "github.com/goliatone/go-civic-dashboard/components/portal"
	"github.com/goliatone/go-civic-dashboard/components/portal/commands"
)

// SessionHeader carries the session id when the query string does not.
const SessionHeader = "X-Portal-Session"

// Handlers exposes the portal over net/http.
type Handlers struct {
	API Executor
}

// OpenRequest mounts a section session.
type OpenRequest struct {
	Section string `json:"section"`
	Query   string `json:"query"`
}

// Mux registers every handler on a ServeMux rooted at base.
func (h *Handlers) Mux(base string) *http.ServeMux {
	base = strings.TrimRight(base, "/")
	if base == "" {
		base = "/portal"
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+base+"/sessions", h.HandleOpen)
	mux.HandleFunc("DELETE "+base+"/sessions", h.HandleCloseSession)
	mux.HandleFunc("GET "+base+"/_state", h.HandleState)
	mux.HandleFunc("GET "+base+"/narrative", h.HandleNarrative)
	mux.HandleFunc("POST "+base+"/filter", h.HandleSetFilter)
	mux.HandleFunc("DELETE "+base+"/filter", h.HandleClearFilter)
	mux.HandleFunc("POST "+base+"/month", h.HandleSetMonth)
	mux.HandleFunc("POST "+base+"/refresh", h.HandleRefresh)
	mux.HandleFunc("POST "+base+"/drilldown", h.HandleOpenDrillDown)
	mux.HandleFunc("PUT "+base+"/drilldown", h.HandleReloadDrillDown)
	mux.HandleFunc("DELETE "+base+"/drilldown", h.HandleCloseDrillDown)
	return mux
}

func (h *Handlers) HandleOpen(w http.ResponseWriter, r *http.Request) {
	var payload OpenRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	snap, err := h.API.Open(r.Context(), payload.Section, strings.TrimPrefix(payload.Query, "?"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (h *Handlers) HandleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.API.CloseSession(r.Context(), SessionID(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	snap, err := h.API.State(r.Context(), SessionID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handlers) HandleNarrative(w http.ResponseWriter, r *http.Request) {
	view, err := h.API.Narrative(r.Context(), SessionID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) HandleSetFilter(w http.ResponseWriter, r *http.Request) {
	var payload commands.SetFilterInput
	if !decode(w, r, &payload) {
		return
	}
	payload.SessionID = withSession(payload.SessionID, r)
	if err := h.API.SetFilter(r.Context(), payload); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handlers) HandleClearFilter(w http.ResponseWriter, r *http.Request) {
	if err := h.API.ClearFilter(r.Context(), commands.ClearFilterInput{SessionID: SessionID(r)}); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handlers) HandleSetMonth(w http.ResponseWriter, r *http.Request) {
	var payload commands.SetMonthInput
	if !decode(w, r, &payload) {
		return
	}
	payload.SessionID = withSession(payload.SessionID, r)
	if err := h.API.SetMonth(r.Context(), payload); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	input := commands.RefreshInput{SessionID: SessionID(r)}
	if err := h.API.Refresh(r.Context(), input); err != nil {
		writeError(w, err)
		return
	}
	snap, err := h.API.State(r.Context(), input.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handlers) HandleOpenDrillDown(w http.ResponseWriter, r *http.Request) {
	var payload commands.OpenDrillDownInput
	if !decode(w, r, &payload) {
		return
	}
	payload.SessionID = withSession(payload.SessionID, r)
	if err := h.API.OpenDrillDown(r.Context(), payload); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handlers) HandleReloadDrillDown(w http.ResponseWriter, r *http.Request) {
	if err := h.API.ReloadDrillDown(r.Context(), commands.ReloadDrillDownInput{SessionID: SessionID(r)}); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handlers) HandleCloseDrillDown(w http.ResponseWriter, r *http.Request) {
	if err := h.API.CloseDrillDown(r.Context(), commands.CloseDrillDownInput{SessionID: SessionID(r)}); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SessionID reads the session id from the query string or SessionHeader.
func SessionID(r *http.Request) string {
	if id := strings.TrimSpace(r.URL.Query().Get("session")); id != "" {
		return id
	}
	return strings.TrimSpace(r.Header.Get(SessionHeader))
}

// StatusFor maps portal errors to HTTP status codes.
func StatusFor(err error) int {
	var fetchErr *portal.FetchError
	switch {
	case errors.Is(err, portal.ErrSessionNotFound), errors.Is(err, portal.ErrUnknownSection):
		return http.StatusNotFound
	case errors.Is(err, portal.ErrUnknownField), errors.Is(err, portal.ErrMissingAncestor):
		return http.StatusBadRequest
	case errors.Is(err, portal.ErrDrillDownClosed):
		return http.StatusConflict
	case errors.Is(err, portal.ErrSlowOperation):
		return http.StatusGatewayTimeout
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func withSession(id string, r *http.Request) string {
	if id != "" {
		return id
	}
	return SessionID(r)
}

func decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, StatusFor(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
