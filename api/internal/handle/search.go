package handle

import (
	"encoding/json"
	"net/http"

	"parimal/api/internal/apperr"
	"parimal/api/internal/entity"
)

type SearchRequest struct {
	Keyword string `json:"keyword"`
}

func (h *Handle) Search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: apperr.BadRequest("POST only")})
		return
	}
	var req SearchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		h.writeError(w, apperr.BadRequest("bad json: "+err.Error()))
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	st, err := h.loadSession(ctx, w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var ans entity.Answer
	if ans, err = h.svc.Query(ctx, st, req.Keyword); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}
