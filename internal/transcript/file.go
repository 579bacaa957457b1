// Package transcript appends broadcast chat records to a local log file in the
// format chat.LoadHistoryFromLog reads back at startup.
package transcript

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/andy6609/linechat/internal/chat"
)

const timeLayout = "2006-01-02 15:04:05"

// File is a chat.Sink writing one line per record:
//
//	2024-05-01 10:00:00 - INFO: Message: [|2024-05-01 12:00:00| [alice]: hi]
type File struct {
	mu  sync.Mutex
	w   io.WriteCloser
	now func() time.Time
}

// Open opens path for appending, creating it and its directory if needed.
func Open(path string) (*File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create transcript dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	return New(f, time.Now), nil
}

// New wraps w; now supplies the prefix timestamp.
func New(w io.WriteCloser, now func() time.Time) *File {
	if now == nil {
		now = time.Now
	}
	return &File{w: w, now: now}
}

func (t *File) Record(_ context.Context, record string) error {
	var b strings.Builder
	b.WriteString(t.now().UTC().Format(timeLayout))
	b.WriteString(" - ")
	b.WriteString(chat.LogMarker)
	b.WriteString(strings.TrimRight(record, "\r\n"))
	b.WriteString("]\n")

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := io.WriteString(t.w, b.String()); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

func (t *File) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.w.Close()
}
