package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imgdrop/common"
)

type fakeFetcher struct {
	mu    sync.Mutex
	blobs map[string]*Blob
	err   error
	calls []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*Blob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if f.err != nil {
		return nil, f.err
	}
	if blob, ok := f.blobs[url]; ok {
		return blob, nil
	}
	return &Blob{Data: []byte("png-bytes"), MIMEType: "image/png"}, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type promptFunc func(ctx context.Context, req SaveRequest) (string, error)

func (f promptFunc) PromptSave(ctx context.Context, req SaveRequest) (string, error) {
	return f(ctx, req)
}

type countingRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
	bytes    int
}

func (r *countingRecorder) ObserveOutcome(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = map[string]int{}
	}
	r.outcomes[outcome]++
}

func (r *countingRecorder) ObserveFetch(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bytes += n
}

const dropHTML = `<img alt="Image" draggable="true" src="https://pbs.twimg.com/media/abc.name.jpg?format=jpg&amp;name=small">`

func newTestPipeline(t *testing.T, fetcher Fetcher, prompt SavePrompt, rec Recorder) *Pipeline {
	t.Helper()
	p, err := NewPipeline(Options{
		Fetcher:  fetcher,
		Prompt:   prompt,
		Display:  NewDisplay(),
		Recorder: rec,
	})
	require.NoError(t, err)
	return p
}

func TestNewPipelineRequiresCollaborators(t *testing.T) {
	_, err := NewPipeline(Options{Prompt: promptFunc(nil)})
	assert.True(t, common.IsKind(err, common.KindConfig))

	_, err = NewPipeline(Options{Fetcher: &fakeFetcher{}})
	assert.True(t, common.IsKind(err, common.KindConfig))
}

func TestIngestSaved(t *testing.T) {
	fetcher := &fakeFetcher{}
	rec := &countingRecorder{}
	var got SaveRequest
	prompt := promptFunc(func(ctx context.Context, req SaveRequest) (string, error) {
		got = req
		assert.Equal(t, StateFetched, req.Slot.State())
		return "/saves/name.jpg.png", nil
	})
	p := newTestPipeline(t, fetcher, prompt, rec)

	result, err := p.Ingest(context.Background(), HTMLPayload(dropHTML))
	require.NoError(t, err)

	assert.Equal(t, OutcomeSaved, result.Outcome)
	assert.Equal(t, "https://pbs.twimg.com/media/abc.name.jpg?format=jpg&name=large", result.CanonicalURL)
	assert.Equal(t, "/saves/name.jpg.png", result.SavedPath)
	assert.Equal(t, []string{result.CanonicalURL}, fetcher.calls)

	assert.Equal(t, "name.jpg", got.SuggestedName)
	assert.Equal(t, []string{".png"}, got.Extensions)
	assert.Equal(t, []byte("png-bytes"), got.Blob.Data)

	require.Equal(t, 1, p.Display().Len())
	slot := p.Display().List()[0]
	assert.Equal(t, StateSaved, slot.State())
	assert.Equal(t, "/saves/name.jpg.png", slot.View().SavedPath)

	assert.Equal(t, 1, rec.outcomes[string(OutcomeSaved)])
	assert.Equal(t, len("png-bytes"), rec.bytes)
}

func TestIngestRejectedCreatesNoSlot(t *testing.T) {
	payloads := map[string]DragPayload{
		"untrusted host": HTMLPayload(`<img src="https://evil.example/img.png">`),
		"transient":      HTMLPayload(`<img src="blob:https://x.com/abcd">`),
		"no html":        NewDragPayload(map[string]string{MIMEPlain: "hello"}),
		"not first":      HTMLPayload(`<a href="/"><img src="https://pbs.twimg.com/media/a.jpg"></a>`),
	}

	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			fetcher := &fakeFetcher{}
			prompt := promptFunc(func(ctx context.Context, req SaveRequest) (string, error) {
				t.Fatal("prompt must not be called")
				return "", nil
			})
			p := newTestPipeline(t, fetcher, prompt, nil)

			result, err := p.Ingest(context.Background(), payload)
			require.NoError(t, err)
			assert.True(t, result.Outcome.Rejected(), "outcome %s", result.Outcome)
			assert.Nil(t, result.Slot)
			assert.Equal(t, 0, p.Display().Len())
			assert.Equal(t, 0, fetcher.callCount())
		})
	}
}

func TestIngestCancelRemovesOnlyItsSlot(t *testing.T) {
	prompt := promptFunc(func(ctx context.Context, req SaveRequest) (string, error) {
		return "", ErrSaveCancelled
	})
	p := newTestPipeline(t, &fakeFetcher{}, prompt, nil)

	other := NewSlot("https://pbs.twimg.com/media/other.jpg")
	p.Display().Prepend(other)

	result, err := p.Ingest(context.Background(), HTMLPayload(dropHTML))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, result.Outcome)
	assert.Equal(t, StateDiscarded, result.Slot.State())
	assert.Nil(t, result.Slot.Blob())

	slots := p.Display().List()
	require.Len(t, slots, 1)
	assert.Equal(t, other.ID(), slots[0].ID())
}

func TestIngestSaveFailureRemovesSlot(t *testing.T) {
	prompt := promptFunc(func(ctx context.Context, req SaveRequest) (string, error) {
		return "", errors.New("disk full")
	})
	p := newTestPipeline(t, &fakeFetcher{}, prompt, nil)

	result, err := p.Ingest(context.Background(), HTMLPayload(dropHTML))
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindStorage))
	assert.Equal(t, OutcomeSaveFailed, result.Outcome)
	assert.Equal(t, 0, p.Display().Len())
}

func TestIngestUnsupportedFormatKeepsPreview(t *testing.T) {
	canonical := "https://pbs.twimg.com/media/abc.name.jpg?format=jpg&name=large"
	fetcher := &fakeFetcher{blobs: map[string]*Blob{
		canonical: {Data: []byte(`{}`), MIMEType: "application/json"},
	}}
	prompt := promptFunc(func(ctx context.Context, req SaveRequest) (string, error) {
		t.Fatal("prompt must not be called")
		return "", nil
	})
	p := newTestPipeline(t, fetcher, prompt, nil)

	result, err := p.Ingest(context.Background(), HTMLPayload(dropHTML))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnsupportedFormat, result.Outcome)

	require.Equal(t, 1, p.Display().Len())
	slot := p.Display().List()[0]
	assert.Equal(t, StatePreviewing, slot.State())
	assert.Nil(t, slot.Blob())
	assert.Equal(t, canonical, slot.CanonicalURL())
}

func TestIngestFetchFailureKeepsPreview(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("connection reset")}
	p := newTestPipeline(t, fetcher, promptFunc(nil), nil)

	result, err := p.Ingest(context.Background(), HTMLPayload(dropHTML))
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindPlatform))
	assert.Equal(t, OutcomeFetchFailed, result.Outcome)
	assert.Equal(t, 1, fetcher.callCount(), "fetch is never retried")

	require.Equal(t, 1, p.Display().Len())
	assert.Equal(t, StatePreviewing, p.Display().List()[0].State())
}

func TestIngestTypedFetchErrorIsPlatform(t *testing.T) {
	notFound := common.New(common.KindTransport, "ingest.fetch", "HTTP 404: Not Found")
	p := newTestPipeline(t, &fakeFetcher{err: notFound}, promptFunc(nil), nil)

	result, err := p.Ingest(context.Background(), HTMLPayload(dropHTML))
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindPlatform))
	assert.ErrorIs(t, err, notFound)
	assert.Equal(t, OutcomeFetchFailed, result.Outcome)
}

func TestIngestConcurrentDrops(t *testing.T) {
	prompt := promptFunc(func(ctx context.Context, req SaveRequest) (string, error) {
		return "/saves/" + req.Slot.ID(), nil
	})
	rec := &countingRecorder{}
	p := newTestPipeline(t, &fakeFetcher{}, prompt, rec)

	const drops = 16
	var wg sync.WaitGroup
	for i := 0; i < drops; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			html := fmt.Sprintf(`<img src="https://pbs.twimg.com/media/img%d.jpg?name=thumb">`, i)
			_, err := p.Ingest(context.Background(), HTMLPayload(html))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, drops, p.Display().Len())
	assert.Equal(t, drops, rec.outcomes[string(OutcomeSaved)])
}

func TestResolve(t *testing.T) {
	p := newTestPipeline(t, &fakeFetcher{}, promptFunc(nil), nil)

	result := p.Resolve(HTMLPayload(`<img src="https://pbs.twimg.com/media/x.png?name=small">`))
	assert.Equal(t, OutcomeAccepted, result.Outcome)
	assert.Equal(t, "https://pbs.twimg.com/media/x.png?name=large", result.CanonicalURL)
	assert.Equal(t, 0, p.Display().Len())
}
