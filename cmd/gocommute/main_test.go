package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"syscall"
	"testing"
	"time"

	"gocommute/internal/transit"
)

type countingRefresher struct {
	calls chan struct{}
}

func (c *countingRefresher) Refresh(ctx context.Context) []transit.Stop {
	c.calls <- struct{}{}
	return []transit.Stop{{Code: "01012"}}
}

func TestRefreshOnSignal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	r := &countingRefresher{calls: make(chan struct{}, 2)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	done := make(chan struct{})
	go func() {
		refreshOnSignal(ctx, sig, r, logger)
		close(done)
	}()

	for i := 0; i < 2; i++ {
		sig <- syscall.SIGHUP
		select {
		case <-r.calls:
		case <-time.After(time.Second):
			t.Fatalf("signal %d did not trigger a refresh", i+1)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("refreshOnSignal did not return after cancel")
	}
}
