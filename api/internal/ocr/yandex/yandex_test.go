package yandex

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngMagic = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00}

func newTestEngine(t *testing.T, ocrHandler http.HandlerFunc) (*Engine, *int32) {
	t.Helper()
	var iamCalls int32
	iam := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&iamCalls, 1)
		_ = json.NewEncoder(w).Encode(map[string]string{"iamToken": "tok-" + string(rune('0'+n))})
	}))
	t.Cleanup(iam.Close)
	srv := httptest.NewServer(ocrHandler)
	t.Cleanup(srv.Close)

	e := New("oauth", "folder-1", []string{"ru", "en"})
	e.iamc.url = iam.URL
	e.url = srv.URL
	return e, &iamCalls
}

func TestRead_Success(t *testing.T) {
	e, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "folder-1", r.Header.Get("x-folder-id"))

		var req request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "PNG", req.MimeType)
		assert.Equal(t, []string{"ru", "en"}, req.LanguageCodes)
		assert.Equal(t, base64.StdEncoding.EncodeToString(pngMagic), req.Content)

		_, _ = w.Write([]byte(`{"result":{"textAnnotation":{"width":"800","height":"600",
			"blocks":[{"lines":[{"text":"Net weight","words":[{"text":"Net"},{"text":"weight"}]}]},
			          {"lines":[{"text":"250 g"}]}]}}}`))
	})

	res, err := e.Read(context.Background(), pngMagic)
	require.NoError(t, err)
	assert.Equal(t, "yandex", res.Engine)
	assert.Equal(t, 800, res.Width)
	assert.Equal(t, 600, res.Height)
	assert.Equal(t, []string{"Net weight", "250 g"}, res.Lines())
	assert.Len(t, res.Blocks[0].Lines[0].Words, 2)
}

func TestRead_RetriesOnceOnUnauthorized(t *testing.T) {
	var calls int32
	e, iamCalls := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "Bearer tok-2", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"result":{"textAnnotation":{"blocks":[{"lines":[{"text":"ok"}]}]}}}`))
	})

	res, err := e.Read(context.Background(), pngMagic)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, res.Lines())
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, int32(2), atomic.LoadInt32(iamCalls))
}

func TestRead_ErrorStatus(t *testing.T) {
	e, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad image"))
	})
	_, err := e.Read(context.Background(), pngMagic)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "yandex ocr 400: bad image")
}

func TestRead_EmptyAnnotation(t *testing.T) {
	e, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{}}`))
	})
	res, err := e.Read(context.Background(), pngMagic)
	require.NoError(t, err)
	assert.Empty(t, res.Blocks)
}

func TestIamClient_CachesToken(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"iamToken":"abc"}`))
	}))
	defer srv.Close()

	c := NewIamClient("oauth")
	c.url = srv.URL
	for i := 0; i < 3; i++ {
		tok, err := c.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "abc", tok)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
