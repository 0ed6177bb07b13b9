// Package saver writes fetched images to disk.
package saver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"imgdrop/common"
	"imgdrop/ingest"
)

const (
	fallbackName = "image"

	// maxStemBytes keeps names, including a " (n)" suffix and extension,
	// under the 255-byte limit of common filesystems.
	maxStemBytes = 200
	maxExtBytes  = 16
)

// DiskSaver writes images into a single directory without ever replacing
// an existing file.
type DiskSaver struct {
	dir      string
	fileMode os.FileMode
	dirMode  os.FileMode

	// serializes name selection so concurrent saves cannot pick the same path
	mu sync.Mutex
}

// NewDiskSaver creates a saver rooted at dir. The directory is created on
// first save.
func NewDiskSaver(dir string) *DiskSaver {
	return &DiskSaver{
		dir:      dir,
		fileMode: 0644,
		dirMode:  0755,
	}
}

func (s *DiskSaver) Dir() string {
	return s.dir
}

// Save writes data as name inside the save directory and returns the path.
// When name does not already end in one of exts, the first one is appended.
// An existing file gets a " (n)" suffix instead of being overwritten.
func (s *DiskSaver) Save(ctx context.Context, name string, exts []string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", common.Wrap(common.KindCancelled, "saver.save", "context done", err)
	}

	filename := FileName(name, exts)

	// Ensure target folder exists
	if err := os.MkdirAll(s.dir, s.dirMode); err != nil {
		return "", common.Wrap(common.KindStorage, "saver.save", "create save folder", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".imgdrop-*")
	if err != nil {
		return "", common.Wrap(common.KindStorage, "saver.save", "create temp file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", common.Wrap(common.KindStorage, "saver.save", "write temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", common.Wrap(common.KindStorage, "saver.save", "sync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return "", common.Wrap(common.KindStorage, "saver.save", "close temp file", err)
	}
	if err := os.Chmod(tmpPath, s.fileMode); err != nil {
		return "", common.Wrap(common.KindStorage, "saver.save", "chmod temp file", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	targetPath, err := s.freePath(filename)
	if err != nil {
		return "", err
	}
	if err := os.Rename(tmpPath, targetPath); err != nil {
		return "", common.Wrap(common.KindStorage, "saver.save", "move file into place", err)
	}
	return targetPath, nil
}

// FileName reduces name to a plain file name carrying one of exts.
func FileName(name string, exts []string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == string(filepath.Separator) || base == "" {
		base = fallbackName
	}
	if len(exts) == 0 {
		return truncateName(base)
	}

	current := strings.ToLower(filepath.Ext(base))
	for _, ext := range exts {
		if current == strings.ToLower(ext) {
			return truncateName(base)
		}
	}
	return truncateName(base + exts[0])
}

// truncateName shortens the stem of filename to maxStemBytes without
// splitting a UTF-8 sequence. An overlong extension counts as stem.
func truncateName(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > maxExtBytes {
		ext = ""
	}
	stem := strings.TrimSuffix(filename, ext)
	if len(stem) <= maxStemBytes {
		return filename
	}

	cut := maxStemBytes
	for cut > 0 && !utf8.RuneStart(stem[cut]) {
		cut--
	}
	return stem[:cut] + ext
}

// freePath returns the first path for filename that does not exist yet.
// Only an existing entry moves on to the next " (n)" suffix.
func (s *DiskSaver) freePath(filename string) (string, error) {
	candidate := filepath.Join(s.dir, filename)
	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)

	for i := 1; ; i++ {
		_, err := os.Lstat(candidate)
		if os.IsNotExist(err) {
			return candidate, nil
		}
		if err != nil {
			return "", common.Wrap(common.KindStorage, "saver.save", fmt.Sprintf("check %s", candidate), err)
		}
		candidate = filepath.Join(s.dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
	}
}

// AutoPrompt is a save prompt that accepts the suggested name without
// asking. It is used by the CLI and when save.auto_accept is set.
type AutoPrompt struct {
	saver *DiskSaver
}

func NewAutoPrompt(saver *DiskSaver) *AutoPrompt {
	return &AutoPrompt{saver: saver}
}

func (p *AutoPrompt) PromptSave(ctx context.Context, req ingest.SaveRequest) (string, error) {
	return p.saver.Save(ctx, req.SuggestedName, req.Extensions, req.Blob.Data)
}
