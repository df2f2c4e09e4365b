package telegram

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"parimal/api/internal/apperr"
	"parimal/api/internal/imageutil"
)

const defaultAlbumDelay = 1200 * time.Millisecond

// albumBatch collects the photos of one Telegram media group.
type albumBatch struct {
	chatID int64

	mu     sync.Mutex
	images [][]byte
	timer  *time.Timer
}

var albums sync.Map // media group id -> *albumBatch

func (r *Router) acceptPhoto(ctx context.Context, msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	ph := msg.Photo[len(msg.Photo)-1]
	img, err := r.fetch(ctx, ph.FileID)
	if err != nil {
		r.log().Error("telegram download failed", zap.Int64("chat", cid), zap.Error(err))
		r.send(cid, "⚠️ Could not download the photo. Please send it again.")
		return
	}
	if msg.MediaGroupID != "" {
		r.addToAlbum(msg.MediaGroupID, cid, img)
		return
	}
	r.extract(ctx, cid, img)
}

// acceptDocument handles images sent as files, which keeps them uncompressed.
func (r *Router) acceptDocument(ctx context.Context, msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	mt := strings.ToLower(msg.Document.MimeType)
	if mt != imageutil.MimeJPEG && mt != imageutil.MimePNG {
		r.send(cid, apperr.ErrUnsupportedImage.Message)
		return
	}
	img, err := r.fetch(ctx, msg.Document.FileID)
	if err != nil {
		r.log().Error("telegram download failed", zap.Int64("chat", cid), zap.Error(err))
		r.send(cid, "⚠️ Could not download the file. Please send it again.")
		return
	}
	r.extract(ctx, cid, img)
}

func (r *Router) extract(ctx context.Context, cid int64, img []byte) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	st, err := r.load(ctx, cid)
	if err != nil {
		r.sendError(cid, err)
		return
	}
	r.send(cid, "Extracting text...")

	var b strings.Builder
	_, err = r.Svc.Extract(ctx, st, img, func(line string) {
		b.WriteString("*")
		b.WriteString(esc(line))
		b.WriteString("*\n")
	})
	if err != nil {
		r.sendError(cid, err)
		return
	}
	if err := r.Store.Save(ctx, st); err != nil {
		r.sendError(cid, apperr.SessionStoreFailed("save", err))
		return
	}

	lines := b.String()
	if lines == "" {
		lines = "_(no text found)_\n"
	}
	body := "Extracted Text:\n\n" + lines + "\nText extracted and saved successfully!"
	if len(body) <= maxMessageLen {
		msg := tgbotapi.NewMessage(cid, body)
		msg.ParseMode = tgbotapi.ModeMarkdown
		msg.ReplyMarkup = makeActionsKeyboard()
		if _, err := r.Bot.Send(msg); err == nil {
			return
		}
		// Markdown can be rejected for odd OCR output; fall back to plain text.
	}
	r.sendLong(cid, "Extracted Text:\n\n"+st.ExtractedText)
	done := tgbotapi.NewMessage(cid, "Text extracted and saved successfully!")
	done.ReplyMarkup = makeActionsKeyboard()
	if _, err := r.Bot.Send(done); err != nil {
		r.log().Warn("telegram send failed", zap.Int64("chat", cid), zap.Error(err))
	}
}

func (r *Router) addToAlbum(groupID string, cid int64, img []byte) {
	bi, _ := albums.LoadOrStore(groupID, &albumBatch{chatID: cid})
	b := bi.(*albumBatch)

	delay := r.AlbumDelay
	if delay <= 0 {
		delay = defaultAlbumDelay
	}

	b.mu.Lock()
	b.images = append(b.images, img)
	first := len(b.images) == 1
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(delay, func() { r.processAlbum(groupID) })
	b.mu.Unlock()

	if first {
		r.send(cid, "Photo received. If the text spans several photos, send them as one album and I will stack the pages before extraction.")
	}
}

func (r *Router) processAlbum(groupID string) {
	bi, ok := albums.LoadAndDelete(groupID)
	if !ok {
		return
	}
	b := bi.(*albumBatch)

	b.mu.Lock()
	images := append([][]byte(nil), b.images...)
	b.mu.Unlock()

	merged, err := stackPages(images)
	if err != nil {
		r.log().Warn("album merge failed", zap.String("group", groupID), zap.Error(err))
		r.send(b.chatID, apperr.ErrUnsupportedImage.Message)
		return
	}
	r.extract(context.Background(), b.chatID, merged)
}

// stackPages draws the images top to bottom, centered, on a white canvas and
// returns the result as JPEG. A single image is returned as is.
func stackPages(images [][]byte) ([]byte, error) {
	if len(images) == 1 {
		return images[0], nil
	}
	decoded := make([]image.Image, 0, len(images))
	maxW, sumH := 0, 0
	for _, b := range images {
		img, _, err := image.Decode(bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		decoded = append(decoded, img)
		if w := img.Bounds().Dx(); w > maxW {
			maxW = w
		}
		sumH += img.Bounds().Dy()
	}
	if maxW == 0 || sumH == 0 {
		return nil, fmt.Errorf("empty images")
	}

	dst := image.NewRGBA(image.Rect(0, 0, maxW, sumH))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	y := 0
	for _, img := range decoded {
		w, h := img.Bounds().Dx(), img.Bounds().Dy()
		x := (maxW - w) / 2
		draw.Draw(dst, image.Rect(x, y, x+w, y+h), img, img.Bounds().Min, draw.Over)
		y += h
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func (r *Router) fetch(ctx context.Context, fileID string) ([]byte, error) {
	url, err := r.Bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, err
	}
	return r.download(ctx, url)
}

func (r *Router) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}
	return io.ReadAll(resp.Body)
}

func (r *Router) httpClient() *http.Client {
	if r.HTTPClient != nil {
		return r.HTTPClient
	}
	return &http.Client{Timeout: 60 * time.Second}
}
