package window

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imgdrop/clipboard"
	"imgdrop/config"
	"imgdrop/ingest"
	"imgdrop/metrics"
	"imgdrop/saver"
)

type pngFetcher struct{ data []byte }

func (f pngFetcher) Fetch(ctx context.Context, url string) (*ingest.Blob, error) {
	return &ingest.Blob{Data: f.data, MIMEType: "image/png"}, nil
}

type memoryClipboard struct {
	mu     sync.Mutex
	writes int
}

func (m *memoryClipboard) Write(ctx context.Context, items map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	return nil
}

func (m *memoryClipboard) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

type testWindow struct {
	server *Server
	http   http.Handler
	clip   *memoryClipboard
	saves  string
}

func newTestWindow(t *testing.T) *testWindow {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))

	cfg := config.Default()
	cfg.Save.Dir = t.TempDir()

	m := metrics.New()
	broker := NewPromptBroker(saver.NewDiskSaver(cfg.Save.Dir), nil)
	pipeline, err := ingest.NewPipeline(ingest.Options{
		Fetcher:  pngFetcher{data: buf.Bytes()},
		Prompt:   broker,
		Recorder: m,
	})
	require.NoError(t, err)

	clip := &memoryClipboard{}
	s, err := NewServer(Options{
		Config:   cfg,
		Pipeline: pipeline,
		Prompts:  broker,
		Copier:   clipboard.NewCopier(clip, nil, m),
		Metrics:  m,
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	return &testWindow{server: s, http: s.Handler(), clip: clip, saves: cfg.Save.Dir}
}

func (w *testWindow) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	w.http.ServeHTTP(rec, req)
	return rec
}

func (w *testWindow) slots(t *testing.T) []SlotResponse {
	t.Helper()
	rec := w.do(t, http.MethodGet, "/api/slots", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out []SlotResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (w *testWindow) drop(t *testing.T, html string) {
	t.Helper()
	rec := w.do(t, http.MethodPost, "/api/drop", DropRequest{Data: map[string]string{
		ingest.MIMEHTML:  html,
		ingest.MIMEPlain: "ignored",
	}})
	require.Equal(t, http.StatusAccepted, rec.Code)
}

// waitForPrompts waits until n slots are showing a save prompt.
func (w *testWindow) waitForPrompts(t *testing.T, n int) []SlotResponse {
	t.Helper()
	var slots []SlotResponse
	require.Eventually(t, func() bool {
		slots = w.slots(t)
		pending := 0
		for _, s := range slots {
			if s.Prompt != nil {
				pending++
			}
		}
		return pending == n
	}, 2*time.Second, 10*time.Millisecond)
	return slots
}

func TestIndexPage(t *testing.T) {
	w := newTestWindow(t)

	rec := w.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `class="img-store"`)
	assert.Contains(t, rec.Body.String(), ingest.TrustedPrefix)
}

func TestDropAndSave(t *testing.T) {
	w := newTestWindow(t)

	w.drop(t, `<img src="https://pbs.twimg.com/media/abc.name.jpg?name=small&amp;format=png">`)

	slots := w.waitForPrompts(t, 1)
	require.Len(t, slots, 1)
	slot := slots[0]
	assert.Equal(t, ingest.StateFetched, slot.State)
	assert.Equal(t, "https://pbs.twimg.com/media/abc.name.jpg?name=large&format=png", slot.CanonicalURL)
	assert.Equal(t, "/slots/"+slot.ID+"/image", slot.ImageURL)
	assert.Equal(t, "name.jpg", slot.Prompt.SuggestedName)
	assert.Equal(t, []string{".png"}, slot.Prompt.Extensions)

	rec := w.do(t, http.MethodPost, "/api/slots/"+slot.ID+"/save", SaveRequest{Filename: "mine"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	w.server.runs.Wait()

	slots = w.slots(t)
	require.Len(t, slots, 1)
	assert.Equal(t, ingest.StateSaved, slots[0].State)
	assert.Nil(t, slots[0].Prompt)
	assert.Equal(t, filepath.Join(w.saves, "mine.png"), slots[0].SavedPath)

	_, err := os.Stat(filepath.Join(w.saves, "mine.png"))
	assert.NoError(t, err)
}

func TestDropUntrustedIsIgnored(t *testing.T) {
	w := newTestWindow(t)

	w.drop(t, `<img src="https://evil.example/img.png">`)
	w.drop(t, `<p>not an image</p>`)
	w.server.runs.Wait()

	assert.Empty(t, w.slots(t))

	rec := w.do(t, http.MethodGet, "/metrics", nil)
	assert.Contains(t, rec.Body.String(), `imgdrop_drops_total{outcome="untrusted_origin"} 1`)
	assert.Contains(t, rec.Body.String(), `imgdrop_drops_total{outcome="not_image_tag"} 1`)
}

func TestCancelRemovesOnlyThatSlot(t *testing.T) {
	w := newTestWindow(t)

	w.drop(t, `<img src="https://pbs.twimg.com/media/one.jpg?name=small">`)
	w.drop(t, `<img src="https://pbs.twimg.com/media/two.jpg?name=small">`)
	slots := w.waitForPrompts(t, 2)

	cancelled := slots[0].ID
	kept := slots[1].ID

	rec := w.do(t, http.MethodPost, "/api/slots/"+cancelled+"/cancel", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		return len(w.slots(t)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	remaining := w.slots(t)
	assert.Equal(t, kept, remaining[0].ID)
	assert.NotNil(t, remaining[0].Prompt)

	rec = w.do(t, http.MethodPost, "/api/slots/"+cancelled+"/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClick(t *testing.T) {
	w := newTestWindow(t)

	w.drop(t, `<img src="https://pbs.twimg.com/media/one.jpg?name=small">`)
	slots := w.waitForPrompts(t, 1)
	id := slots[0].ID

	rec := w.do(t, http.MethodPost, "/api/click", ClickRequest{Tag: "FIGCAPTION", SlotID: id})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ignored"}`, rec.Body.String())
	assert.Equal(t, 0, w.clip.count())

	rec = w.do(t, http.MethodPost, "/api/click", ClickRequest{Tag: "IMG", SlotID: id})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"copied"}`, rec.Body.String())
	assert.Equal(t, 1, w.clip.count())

	rec = w.do(t, http.MethodPost, "/api/click", ClickRequest{Tag: "IMG", SlotID: "unknown"})
	assert.JSONEq(t, `{"status":"ignored"}`, rec.Body.String())
}

func TestClickOnPreviewFails(t *testing.T) {
	w := newTestWindow(t)
	slot := ingest.NewSlot("https://pbs.twimg.com/media/p.jpg?name=large")
	w.server.display.Prepend(slot)

	status, err := w.server.HandleClick(context.Background(), ClickRequest{Tag: "img", SlotID: slot.ID()})
	assert.Error(t, err)
	assert.Equal(t, ClickFailed, status)
	assert.Equal(t, 0, w.clip.count())
}

func TestSlotImage(t *testing.T) {
	w := newTestWindow(t)

	preview := ingest.NewSlot("https://pbs.twimg.com/media/p.jpg?name=large")
	w.server.display.Prepend(preview)

	rec := w.do(t, http.MethodGet, "/slots/"+preview.ID()+"/image", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, preview.CanonicalURL(), rec.Header().Get("Location"))

	w.drop(t, `<img src="https://pbs.twimg.com/media/one.jpg?name=small">`)
	slots := w.waitForPrompts(t, 1)
	var fetched string
	for _, s := range slots {
		if s.Prompt != nil {
			fetched = s.ID
		}
	}

	rec = w.do(t, http.MethodGet, "/slots/"+fetched+"/image", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	rec = w.do(t, http.MethodGet, "/slots/missing/image", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBadRequests(t *testing.T) {
	w := newTestWindow(t)

	req := httptest.NewRequest(http.MethodPost, "/api/drop", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	w.http.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = w.do(t, http.MethodPost, "/api/slots/nope/save", SaveRequest{})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWritesRequireJSON(t *testing.T) {
	w := newTestWindow(t)

	html := `<img src="https://pbs.twimg.com/media/one.jpg?name=small">`
	body := `{"data":{"text/html":` + strconv.Quote(html) + `}}`

	for _, path := range []string{"/api/drop", "/api/click", "/api/slots/any/save", "/api/slots/any/cancel"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
			req.Header.Set("Content-Type", "text/plain;charset=UTF-8")
			rec := httptest.NewRecorder()
			w.http.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
		})
	}

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, w.slots(t), "a text/plain drop must not start a pipeline")

	req := httptest.NewRequest(http.MethodPost, "/api/drop", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec := httptest.NewRecorder()
	w.http.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	w.waitForPrompts(t, 1)
}

func TestCloseAbandonsPrompts(t *testing.T) {
	w := newTestWindow(t)

	w.drop(t, `<img src="https://pbs.twimg.com/media/one.jpg?name=small">`)
	w.waitForPrompts(t, 1)

	w.server.Close()
	assert.Empty(t, w.slots(t), "abandoned prompt discards its slot")
}
