package handle

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"parimal/api/internal/apperr"
)

type ExtractRequest struct {
	ImageB64 string `json:"image_b64"`
}

type ExtractResponse struct {
	SessionID string   `json:"session_id"`
	Engine    string   `json:"engine"`
	Text      string   `json:"text"`
	Lines     []string `json:"lines"`
}

func stripDataURL(b64 string) string {
	s := strings.TrimSpace(b64)
	if i := strings.Index(s, ","); i != -1 && strings.HasPrefix(strings.ToLower(s[:i]), "data:") {
		return s[i+1:]
	}
	return s
}

// Extract accepts either a multipart upload (field "image") or a JSON body
// with a base64 image and stores the recognized text in the session.
func (h *Handle) Extract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: apperr.BadRequest("POST only")})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	img, err := h.readImage(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	st, err := h.loadSession(ctx, w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	text, err := h.svc.Extract(ctx, st, img, nil)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.saveSession(ctx, st); err != nil {
		h.writeError(w, err)
		return
	}

	engine := st.Engine
	if engine == "" {
		engine = h.svc.Engines().Default()
	}
	lines := st.Lines
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, http.StatusOK, ExtractResponse{SessionID: st.ID, Engine: engine, Text: text, Lines: lines})
}

func (h *Handle) readImage(r *http.Request) ([]byte, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		f, _, err := r.FormFile("image")
		if err != nil {
			return nil, apperr.BadRequest("multipart field \"image\" is required: " + err.Error())
		}
		defer f.Close()
		img, err := io.ReadAll(f)
		if err != nil {
			return nil, tooLargeOr(err)
		}
		return nonEmpty(img)
	}

	var req ExtractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, tooLargeOr(err)
	}
	img, err := base64.StdEncoding.DecodeString(stripDataURL(req.ImageB64))
	if err != nil {
		return nil, apperr.BadRequest("bad image_b64")
	}
	return nonEmpty(img)
}

func nonEmpty(img []byte) ([]byte, error) {
	if len(img) == 0 {
		return nil, apperr.BadRequest("empty image")
	}
	return img, nil
}

func tooLargeOr(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return apperr.BadRequest("image is larger than the upload limit")
	}
	return apperr.BadRequest("bad request body: " + err.Error())
}
