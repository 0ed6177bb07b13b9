package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"imgdrop/common"
)

// ErrSaveCancelled is returned by a SavePrompt when the user dismisses it.
var ErrSaveCancelled = common.New(common.KindCancelled, "prompt.save", "save dismissed")

// SaveRequest is what the save prompt is asked to persist.
type SaveRequest struct {
	Slot          *Slot
	Blob          *Blob
	SuggestedName string
	Extensions    []string
}

// SavePrompt asks where to save a blob. It returns the written path, or
// ErrSaveCancelled when dismissed.
type SavePrompt interface {
	PromptSave(ctx context.Context, req SaveRequest) (string, error)
}

// Recorder receives pipeline counters. metrics.Metrics implements it.
type Recorder interface {
	ObserveOutcome(outcome string)
	ObserveFetch(bytes int)
}

// Options configures a Pipeline.
type Options struct {
	Fetcher  Fetcher
	Prompt   SavePrompt
	Display  *Display
	Logger   *slog.Logger
	Recorder Recorder
}

// Pipeline runs drops through extract, authorize, canonicalize and
// materialize. Runs are independent; it is safe to call Ingest from many
// goroutines.
type Pipeline struct {
	fetcher  Fetcher
	prompt   SavePrompt
	display  *Display
	logger   *slog.Logger
	recorder Recorder
}

func NewPipeline(opts Options) (*Pipeline, error) {
	if opts.Fetcher == nil {
		return nil, common.New(common.KindConfig, "ingest.new", "fetcher is required")
	}
	if opts.Prompt == nil {
		return nil, common.New(common.KindConfig, "ingest.new", "save prompt is required")
	}
	if opts.Display == nil {
		opts.Display = NewDisplay()
	}
	if opts.Logger == nil {
		opts.Logger = common.DiscardLogger()
	}

	return &Pipeline{
		fetcher:  opts.Fetcher,
		prompt:   opts.Prompt,
		display:  opts.Display,
		logger:   opts.Logger.With("component", "ingest"),
		recorder: opts.Recorder,
	}, nil
}

func (p *Pipeline) Display() *Display {
	return p.display
}

// Resolve runs the synchronous half of a drop and returns the canonical URL.
// A non-accepted outcome means the drop is ignored.
func (p *Pipeline) Resolve(payload DragPayload) Result {
	ref, outcome := ExtractImageReference(payload)
	if outcome != OutcomeAccepted {
		return Result{Outcome: outcome}
	}

	if outcome := AuthorizeSource(ref); outcome != OutcomeAccepted {
		return Result{Outcome: outcome, Reference: ref}
	}

	canonical, err := Canonicalize(ref)
	if err != nil {
		p.logger.Debug("drop ignored", "reference", ref, "error", err)
		return Result{Outcome: OutcomeInvalidURL, Reference: ref}
	}

	return Result{Outcome: OutcomeAccepted, Reference: ref, CanonicalURL: canonical}
}

// Ingest handles one drop end to end. Rejected drops return a result with
// no slot and no error.
func (p *Pipeline) Ingest(ctx context.Context, payload DragPayload) (Result, error) {
	resolved := p.Resolve(payload)
	if resolved.Outcome != OutcomeAccepted {
		p.logger.Debug("drop ignored", "outcome", resolved.Outcome, "types", payload.Types())
		p.observe(resolved.Outcome)
		return resolved, nil
	}

	result, err := p.Materialize(ctx, resolved.CanonicalURL)
	result.Reference = resolved.Reference
	return result, err
}

// Materialize shows a slot for canonical, fetches it and hands the bytes to
// the save prompt. The slot is removed when the prompt is dismissed.
func (p *Pipeline) Materialize(ctx context.Context, canonical string) (Result, error) {
	slot := NewSlot(canonical)
	p.display.Prepend(slot)
	result := Result{CanonicalURL: canonical, Slot: slot}

	log := p.logger.With("slot", slot.ID(), "url", canonical)
	log.Info("slot created")

	blob, err := p.fetcher.Fetch(ctx, canonical)
	if err != nil {
		result.Outcome = OutcomeFetchFailed
		p.observe(result.Outcome)
		return result, common.WithKind(common.KindPlatform, "ingest.materialize", "fetch image", err)
	}
	if p.recorder != nil {
		p.recorder.ObserveFetch(len(blob.Data))
	}

	ext, ok := ExtensionForMIME(blob.MIMEType)
	if !ok {
		log.Debug("unsupported image type", "mime", blob.MIMEType)
		result.Outcome = OutcomeUnsupportedFormat
		p.observe(result.Outcome)
		return result, nil
	}

	name := SuggestedFilename(canonical)
	slot.attach(blob, ext, name)
	log.Info("image fetched", "mime", blob.MIMEType, "bytes", len(blob.Data))

	path, err := p.prompt.PromptSave(ctx, SaveRequest{
		Slot:          slot,
		Blob:          blob,
		SuggestedName: name,
		Extensions:    []string{ext},
	})
	if err != nil {
		p.display.Remove(slot.ID())
		slot.discard()

		if errors.Is(err, ErrSaveCancelled) || common.IsKind(err, common.KindCancelled) {
			log.Info("save cancelled, slot removed")
			result.Outcome = OutcomeCancelled
			p.observe(result.Outcome)
			return result, nil
		}

		result.Outcome = OutcomeSaveFailed
		p.observe(result.Outcome)
		return result, common.Wrap(common.KindStorage, "ingest.materialize", fmt.Sprintf("save %s", name), err)
	}

	slot.markSaved(path)
	log.Info("image saved", "path", path)
	result.Outcome = OutcomeSaved
	result.SavedPath = path
	p.observe(result.Outcome)
	return result, nil
}

func (p *Pipeline) observe(outcome Outcome) {
	if p.recorder != nil {
		p.recorder.ObserveOutcome(string(outcome))
	}
}
