package tui

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestPublisherBroadcastsToSubscriber(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doip.sock")
	pub, err := NewPublisher(path, nil)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	defer pub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, err := Dial(ctx, path)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	// Give the accept loop a moment to register the subscriber before
	// publishing, since Publish only reaches already-registered conns.
	time.Sleep(50 * time.Millisecond)

	want := ServerEvent{Kind: ConnectionOpened, ConnID: "10.0.0.1:1234", State: "WaitRoutingActivation", Timestamp: time.Now()}
	pub.Publish(want)

	select {
	case got := <-events:
		if got.ConnID != want.ConnID || got.State != want.State || got.Kind != want.Kind {
			t.Fatalf("got %+v, want %+v", got, want)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

func TestPublisherCloseDisconnectsSubscribers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doip.sock")
	pub, err := NewPublisher(path, nil)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	events, err := Dial(ctx, path)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	pub.Close()

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected channel to close, got an event instead")
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for subscriber channel to close")
	}
}
