// Package session holds the per-session state shared by the extraction and
// entity query stages, and the stores that keep it between requests.
package session

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	CookieName = "parimal_session"
	HeaderName = "X-Session-ID"
)

// State is the explicit context object passed between the two stages.
// HasText turns true on the first successful extraction and stays true
// until the session is reset or expires.
type State struct {
	ID            string    `json:"id"`
	ExtractedText string    `json:"extracted_text"`
	Lines         []string  `json:"lines,omitempty"`
	HasText       bool      `json:"has_text"`
	Engine        string    `json:"engine,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func New(id string) *State { return &State{ID: id} }

// SetText overwrites the stored extraction, leaving no trace of the
// previous one.
func (s *State) SetText(text string, lines []string) {
	s.ExtractedText = text
	s.Lines = append([]string(nil), lines...)
	s.HasText = true
	s.UpdatedAt = time.Now().UTC()
}

// Store persists session state. Load returns a fresh State for unknown or
// expired ids.
type Store interface {
	Load(ctx context.Context, id string) (*State, error)
	Save(ctx context.Context, st *State) error
	Delete(ctx context.Context, id string) error
	Close() error
}

func NewID() string { return uuid.NewString() }

// IDFromRequest returns the session id sent in the header or the cookie, or
// "" when the request carries none (or an invalid one).
func IDFromRequest(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(HeaderName)); validID(id) {
		return id
	}
	if c, err := r.Cookie(CookieName); err == nil && validID(c.Value) {
		return c.Value
	}
	return ""
}

// Ensure returns the request's session id, issuing a new one as a cookie
// when absent.
func Ensure(w http.ResponseWriter, r *http.Request) string {
	if id := IDFromRequest(r); id != "" {
		return id
	}
	id := NewID()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func validID(id string) bool {
	if id == "" {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

func expired(st *State, ttl time.Duration) bool {
	return ttl > 0 && !st.UpdatedAt.IsZero() && time.Since(st.UpdatedAt) > ttl
}
