package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestManagerReceivesClientEvents(t *testing.T) {
	t.Skip("requires binding the fixed loopback port; exercised via integration testing, not unit tests")
}

func TestFrameRoundTripDirect(t *testing.T) {
	var mu sync.Mutex
	var got []Event
	sink := func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev)
	}

	mgr, err := NewManager(sink, nil)
	if err != nil {
		t.Skipf("cannot bind ipc manager in this environment: %v", err)
	}
	defer mgr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := DialManager(ctx)
	if err != nil {
		t.Fatalf("DialManager: %v", err)
	}
	defer client.Close()

	want := Event{Instrument: InstrumentLatency, Value: 42, Attributes: map[string]string{"provider": "s3"}}
	if err := client.Send(want); err != nil {
		t.Fatalf("Send: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("expected 1 received event, got %d", len(got))
	}
	if got[0].Instrument != want.Instrument || got[0].Value != want.Value {
		t.Fatalf("expected %+v, got %+v", want, got[0])
	}
}
