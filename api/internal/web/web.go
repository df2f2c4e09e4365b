// Package web serves the server-rendered pages: the landing page, Text
// Extraction and Entity Search.
package web

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"parimal/api/internal/apperr"
	"parimal/api/internal/entity"
	"parimal/api/internal/imageutil"
	"parimal/api/internal/logger"
	"parimal/api/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

type Server struct {
	svc       *entity.Service
	store     session.Store
	log       *zap.Logger
	timeout   time.Duration
	maxUpload int64
	pages     map[string]*template.Template
	md        goldmark.Markdown
}

type Options struct {
	Timeout        time.Duration
	MaxUploadBytes int64
}

// page is the data every template receives; each page reads the fields it
// needs.
type page struct {
	Page  string
	Title string
	Error string

	ImageURL template.URL
	Lines    []string
	Success  bool

	Warning  string
	Text     string
	Keyword  string
	Searched bool
	Answered bool
	Response template.HTML
}

func New(svc *entity.Service, store session.Store, log *zap.Logger, opts Options) (*Server, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 180 * time.Second
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}
	pages := make(map[string]*template.Template)
	for _, name := range []string{"index", "extract", "search"} {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, err
		}
		pages[name] = t
	}
	return &Server{
		svc:       svc,
		store:     store,
		log:       logger.OrNop(log),
		timeout:   opts.Timeout,
		maxUpload: opts.MaxUploadBytes,
		pages:     pages,
		md:        goldmark.New(),
	}, nil
}

// Register mounts the page routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.Index)
	mux.HandleFunc("GET /extract", s.ExtractForm)
	mux.HandleFunc("POST /extract", s.Upload)
	mux.HandleFunc("GET /search", s.SearchForm)
	mux.HandleFunc("POST /search", s.Search)
	mux.HandleFunc("POST /reset", s.Reset)
}

func (s *Server) Index(w http.ResponseWriter, r *http.Request) {
	session.Ensure(w, r)
	s.render(w, http.StatusOK, "index", page{})
}

func (s *Server) ExtractForm(w http.ResponseWriter, r *http.Request) {
	session.Ensure(w, r)
	s.render(w, http.StatusOK, "extract", page{Page: "extract", Title: "Text Extraction"})
}

// Upload runs the extraction stage for the uploaded file and shows every
// recognized line.
func (s *Server) Upload(w http.ResponseWriter, r *http.Request) {
	p := page{Page: "extract", Title: "Text Extraction"}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	img, err := readUpload(r)
	if err != nil {
		s.fail(w, "extract", p, err)
		return
	}
	if !imageutil.Supported(img) {
		s.fail(w, "extract", p, apperr.ErrUnsupportedImage)
		return
	}
	p.ImageURL = template.URL(imageutil.DataURL(img))

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	st, err := s.load(ctx, w, r)
	if err != nil {
		s.fail(w, "extract", p, err)
		return
	}
	if _, err := s.svc.Extract(ctx, st, img, func(line string) { p.Lines = append(p.Lines, line) }); err != nil {
		s.fail(w, "extract", p, err)
		return
	}
	if err := s.store.Save(ctx, st); err != nil {
		s.fail(w, "extract", p, apperr.SessionStoreFailed("save", err))
		return
	}
	p.Success = true
	s.render(w, http.StatusOK, "extract", p)
}

func (s *Server) SearchForm(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	p := page{Page: "search", Title: "Entity Search"}
	st, err := s.load(ctx, w, r)
	if err != nil {
		s.fail(w, "search", p, err)
		return
	}
	if !st.HasText {
		p.Warning = apperr.ErrTextNotExtracted.Message
	}
	p.Text = st.ExtractedText
	s.render(w, http.StatusOK, "search", p)
}

// Search runs the entity query stage for the submitted keyword.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	p := page{Page: "search", Title: "Entity Search", Keyword: r.FormValue("keyword")}
	st, err := s.load(ctx, w, r)
	if err != nil {
		s.fail(w, "search", p, err)
		return
	}
	p.Text = st.ExtractedText

	ans, err := s.svc.Query(ctx, st, p.Keyword)
	switch {
	case errors.Is(err, apperr.ErrTextNotExtracted):
		p.Warning = apperr.ErrTextNotExtracted.Message
		s.render(w, http.StatusConflict, "search", p)
		return
	case errors.Is(err, apperr.ErrEmptyKeyword):
		s.fail(w, "search", p, err)
		return
	case err != nil:
		p.Searched = true
		s.fail(w, "search", p, err)
		return
	}

	p.Keyword = ans.Keyword
	p.Searched = true
	p.Answered = true
	p.Response = s.markdown(ans.Text)
	s.render(w, http.StatusOK, "search", p)
}

// Reset forgets the session's extracted text.
func (s *Server) Reset(w http.ResponseWriter, r *http.Request) {
	if id := session.IDFromRequest(r); id != "" {
		if err := s.store.Delete(r.Context(), id); err != nil {
			s.log.Error("session reset failed", zap.String("session", id), zap.Error(err))
		}
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) load(ctx context.Context, w http.ResponseWriter, r *http.Request) (*session.State, error) {
	id := session.Ensure(w, r)
	st, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, apperr.SessionStoreFailed("load", err)
	}
	return st, nil
}

func (s *Server) fail(w http.ResponseWriter, name string, p page, err error) {
	e := apperr.From(err)
	code := apperr.HTTPStatus(e)
	if code >= http.StatusInternalServerError {
		s.log.Error("page request failed", zap.String("page", name), zap.String("code", string(e.Code)), zap.Error(err))
	}
	p.Error = e.Message
	if e.Retryable {
		p.Error += ". Please try again."
	}
	s.render(w, code, name, p)
}

func (s *Server) render(w http.ResponseWriter, code int, name string, p page) {
	var buf bytes.Buffer
	if err := s.pages[name].ExecuteTemplate(&buf, "layout", p); err != nil {
		s.log.Error("render failed", zap.String("page", name), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_, _ = buf.WriteTo(w)
}

// markdown renders the generator's answer; raw HTML in it is not passed
// through.
func (s *Server) markdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := s.md.Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(buf.String())
}

func readUpload(r *http.Request) ([]byte, error) {
	f, _, err := r.FormFile("image")
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, &apperr.Error{Code: apperr.CodeBadRequest, Message: "The image is larger than the upload limit.", Err: err}
		}
		return nil, &apperr.Error{Code: apperr.CodeBadRequest, Message: "Please choose an image file to upload.", Err: err}
	}
	defer f.Close()
	img, err := io.ReadAll(f)
	if err != nil {
		return nil, apperr.BadRequest(err.Error())
	}
	if len(img) == 0 {
		return nil, &apperr.Error{Code: apperr.CodeBadRequest, Message: "The uploaded file is empty."}
	}
	return img, nil
}
