package vmlaunch

import (
	"context"
	"testing"
	"time"
)

func TestWaitForAgentReturnsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- WaitForAgent(ctx, 3, 5252) }()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected error once context is cancelled and no vsock device is reachable")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForAgent did not return promptly after context cancellation")
	}
}
