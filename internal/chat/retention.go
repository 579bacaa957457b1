package chat

import (
	"context"
	"log/slog"
	"time"
)

// RunRetention trims h to max records every interval until ctx is done.
func RunRetention(ctx context.Context, h *History, max int, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := h.Trim(max); removed > 0 {
				logger.Info("chat history trimmed", "removed", removed, "retained", max)
			}
		}
	}
}
