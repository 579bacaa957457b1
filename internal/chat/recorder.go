package chat

import (
	"context"
	"log/slog"
)

// Sink persists broadcast records outside the process, for example a
// transcript file or a Redis list.
type Sink interface {
	Record(ctx context.Context, record string) error
}

// RunRecorder copies every message arriving on sub into sink until ctx is
// done or the hub closes, then closes sub. Subscribing before the server
// starts accepting means no broadcast escapes the sink. Sink failures are
// logged and skipped.
func RunRecorder(ctx context.Context, sub *Subscription, sink Sink, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			if err := sink.Record(ctx, msg.Text); err != nil {
				logger.Warn("recording chat message failed", "error", err)
			}
		}
	}
}
