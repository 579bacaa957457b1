package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunRetention_TrimsToMax(t *testing.T) {
	h := NewHistory()
	for i := 0; i < 30; i++ {
		h.Append("x")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		RunRetention(ctx, h, 10, 5*time.Millisecond, nil)
	}()

	assert.Eventually(t, func() bool { return h.Len() == 10 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("retention did not stop on cancel")
	}
}
