package room

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/reeftide/abyssal-server/internal/types"
	"github.com/reeftide/abyssal-server/internal/wire"
)

// TestMain verifies the room package leaves no goroutines running once
// every test's rooms have been shut down.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestShutdownStopsRunLoopGoroutine(t *testing.T) {
	r := New(types.RoomID("goleak-room"), Config{Capacity: 4, TickRateHz: 20})
	_, err := r.Join(context.Background(), newFakeSender(0), wire.JoinGame{DisplayName: "A"})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown did not complete: %v", err)
	}
}
