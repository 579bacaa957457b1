// Package archive mirrors chat history into a capped Redis list so a
// restarted server can replay recent context without a local log file.
package archive

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/andy6609/linechat/internal/chat"
)

// DefaultKey is the list holding archived records, oldest first.
const DefaultKey = "linechat:history"

// Redis is a chat.Sink that keeps the newest max records in a Redis list.
// It is safe for concurrent use.
type Redis struct {
	rdb *redis.Client
	key string
	max int
}

// NewRedis creates an archive client. An empty key selects DefaultKey and a
// non-positive max selects chat.DefaultMaxHistory.
func NewRedis(opts *redis.Options, key string, max int) *Redis {
	if key == "" {
		key = DefaultKey
	}
	if max <= 0 {
		max = chat.DefaultMaxHistory
	}
	return &Redis{
		rdb: redis.NewClient(opts),
		key: key,
		max: max,
	}
}

func (a *Redis) Ping(ctx context.Context) error {
	return a.rdb.Ping(ctx).Err()
}

func (a *Redis) Close() error {
	return a.rdb.Close()
}

// Record appends record and trims the list to the newest max entries.
func (a *Redis) Record(ctx context.Context, record string) error {
	pipe := a.rdb.TxPipeline()
	pipe.RPush(ctx, a.key, record)
	pipe.LTrim(ctx, a.key, int64(-a.max), -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("archive record: %w", err)
	}
	return nil
}

// Load returns the archived records in chronological order.
func (a *Redis) Load(ctx context.Context) ([]string, error) {
	records, err := a.rdb.LRange(ctx, a.key, int64(-a.max), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("archive load: %w", err)
	}
	return records, nil
}

// LoadHistory seeds a History from the archive, falling back to an empty
// history when Redis is unreachable.
func (a *Redis) LoadHistory(ctx context.Context, logger *slog.Logger) (*chat.History, error) {
	if logger == nil {
		logger = slog.Default()
	}
	records, err := a.Load(ctx)
	if err != nil {
		return chat.NewHistory(), err
	}
	logger.Info("chat history bootstrapped", "source", "redis", "key", a.key, "records", len(records))
	return chat.NewHistoryFrom(records), nil
}
