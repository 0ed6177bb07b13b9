// Package clipboard copies a slot's image to the system clipboard as PNG.
package clipboard

import (
	"context"
	"log/slog"
	"sync"

	sysclip "golang.design/x/clipboard"

	"imgdrop/common"
	"imgdrop/ingest"
)

// MIMEPNG is the only item type written to the clipboard.
const MIMEPNG = "image/png"

// Writer stores MIME-keyed items as the current clipboard content.
type Writer interface {
	Write(ctx context.Context, items map[string][]byte) error
}

// System is the OS clipboard. It is initialized lazily on first write.
type System struct {
	once    sync.Once
	initErr error
}

func NewSystem() *System {
	return &System{}
}

func (s *System) Write(ctx context.Context, items map[string][]byte) error {
	s.once.Do(func() {
		s.initErr = sysclip.Init()
	})
	if s.initErr != nil {
		return common.Wrap(common.KindPlatform, "clipboard.write", "clipboard unavailable", s.initErr)
	}

	data, ok := items[MIMEPNG]
	if !ok {
		return common.New(common.KindUnsupported, "clipboard.write", "only image/png items are supported")
	}
	if err := ctx.Err(); err != nil {
		return common.Wrap(common.KindCancelled, "clipboard.write", "context done", err)
	}

	sysclip.Write(sysclip.FmtImage, data)
	return nil
}

// Recorder receives copy results. metrics.Metrics implements it.
type Recorder interface {
	ObserveCopy(result string)
}

// Copier re-encodes slot images to PNG and hands them to a Writer.
type Copier struct {
	writer   Writer
	logger   *slog.Logger
	recorder Recorder
}

func NewCopier(writer Writer, logger *slog.Logger, recorder Recorder) *Copier {
	if logger == nil {
		logger = common.DiscardLogger()
	}
	return &Copier{
		writer:   writer,
		logger:   logger.With("component", "clipboard"),
		recorder: recorder,
	}
}

// Copy puts the slot's image on the clipboard. Failures are logged and
// returned; nothing is retried.
func (c *Copier) Copy(ctx context.Context, slot *ingest.Slot) error {
	err := c.copy(ctx, slot)
	if err != nil {
		c.logger.Error("clipboard copy failed", "slot", slot.ID(), "error", err)
		c.observe("error")
		return err
	}
	c.logger.Info("image copied to clipboard", "slot", slot.ID())
	c.observe("ok")
	return nil
}

func (c *Copier) copy(ctx context.Context, slot *ingest.Slot) error {
	if c.writer == nil {
		return common.New(common.KindPlatform, "clipboard.copy", "clipboard disabled")
	}

	blob := slot.Blob()
	if blob == nil {
		return common.New(common.KindPlatform, "clipboard.copy", "image not loaded yet")
	}

	png, err := common.EncodePNG(blob.Data)
	if err != nil {
		return common.WithKind(common.KindPlatform, "clipboard.copy", "re-encode as png", err)
	}

	if err := c.writer.Write(ctx, map[string][]byte{MIMEPNG: png}); err != nil {
		return common.WithKind(common.KindPlatform, "clipboard.copy", "write clipboard", err)
	}
	return nil
}

func (c *Copier) observe(result string) {
	if c.recorder != nil {
		c.recorder.ObserveCopy(result)
	}
}
