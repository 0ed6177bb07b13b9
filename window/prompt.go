package window

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"imgdrop/common"
	"imgdrop/ingest"
	"imgdrop/saver"
)

var (
	ErrNoPrompt        = errors.New("no pending save prompt for slot")
	ErrAlreadyAnswered = errors.New("save prompt already answered")
)

type decision struct {
	filename string
	cancel   bool
}

type pendingPrompt struct {
	req      ingest.SaveRequest
	openedAt time.Time
	decide   chan decision

	// set under PromptBroker.mu by the first answer
	answered bool
}

// PromptView is what the page needs to render a pending save prompt.
type PromptView struct {
	SuggestedName string    `json:"suggested_name"`
	Extensions    []string  `json:"extensions"`
	OpenedAt      time.Time `json:"opened_at"`
}

// PromptBroker is the interactive save prompt. A pipeline run blocks in
// PromptSave until the page accepts or dismisses its slot's prompt.
type PromptBroker struct {
	saver  *saver.DiskSaver
	logger *slog.Logger

	mu      sync.RWMutex
	pending map[string]*pendingPrompt
}

func NewPromptBroker(s *saver.DiskSaver, logger *slog.Logger) *PromptBroker {
	if logger == nil {
		logger = common.DiscardLogger()
	}
	return &PromptBroker{
		saver:   s,
		logger:  logger.With("component", "prompt"),
		pending: make(map[string]*pendingPrompt),
	}
}

// PromptSave implements ingest.SavePrompt.
func (b *PromptBroker) PromptSave(ctx context.Context, req ingest.SaveRequest) (string, error) {
	id := req.Slot.ID()
	p := &pendingPrompt{
		req:      req,
		openedAt: time.Now(),
		decide:   make(chan decision, 1),
	}

	b.mu.Lock()
	b.pending[id] = p
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	b.logger.Debug("save prompt opened", "slot", id, "name", req.SuggestedName)

	select {
	case d := <-p.decide:
		if d.cancel {
			return "", ingest.ErrSaveCancelled
		}
		name := d.filename
		if name == "" {
			name = req.SuggestedName
		}
		return b.saver.Save(ctx, name, req.Extensions, req.Blob.Data)
	case <-ctx.Done():
		return "", common.Wrap(common.KindCancelled, "prompt.save", "prompt abandoned", ctx.Err())
	}
}

// Accept answers the slot's prompt with a file name. An empty name keeps
// the suggestion.
func (b *PromptBroker) Accept(slotID, filename string) error {
	return b.answer(slotID, decision{filename: filename})
}

// Dismiss cancels the slot's prompt; the pipeline then removes the slot.
func (b *PromptBroker) Dismiss(slotID string) error {
	return b.answer(slotID, decision{cancel: true})
}

// answer delivers the first decision for a prompt. Later answers fail with
// ErrAlreadyAnswered until the prompt closes, even while the save runs.
func (b *PromptBroker) answer(slotID string, d decision) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.pending[slotID]
	if !ok {
		return ErrNoPrompt
	}
	if p.answered {
		return ErrAlreadyAnswered
	}
	p.answered = true

	// decide has room for exactly one decision
	p.decide <- d
	return nil
}

// Pending returns the open prompt for a slot, if any.
func (b *PromptBroker) Pending(slotID string) (PromptView, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.pending[slotID]
	if !ok {
		return PromptView{}, false
	}
	return PromptView{
		SuggestedName: p.req.SuggestedName,
		Extensions:    p.req.Extensions,
		OpenedAt:      p.openedAt,
	}, true
}
