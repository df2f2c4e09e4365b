package handle

import (
	"net/http"

	"parimal/api/internal/apperr"
)

type SessionResponse struct {
	SessionID string   `json:"session_id"`
	HasText   bool     `json:"has_text"`
	Text      string   `json:"text"`
	Lines     []string `json:"lines"`
	Engine    string   `json:"engine,omitempty"`
}

// Session returns the current session state on GET and resets it on DELETE.
func (h *Handle) Session(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	switch r.Method {
	case http.MethodGet:
		st, err := h.loadSession(ctx, w, r)
		if err != nil {
			h.writeError(w, err)
			return
		}
		lines := st.Lines
		if lines == nil {
			lines = []string{}
		}
		writeJSON(w, http.StatusOK, SessionResponse{
			SessionID: st.ID,
			HasText:   st.HasText,
			Text:      st.ExtractedText,
			Lines:     lines,
			Engine:    st.Engine,
		})
	case http.MethodDelete:
		st, err := h.loadSession(ctx, w, r)
		if err != nil {
			h.writeError(w, err)
			return
		}
		if err := h.store.Delete(ctx, st.ID); err != nil {
			h.writeError(w, apperr.SessionStoreFailed("delete", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: apperr.BadRequest("GET or DELETE only")})
	}
}
