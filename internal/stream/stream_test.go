package stream

import (
	"context"
	"testing"
	"time"
)

func TestPublishReachesSubscribers(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.Subscribe(ctx)
	evt := TransferEvent{AssetID: 1, AssetName: "hello.txt", FromEmail: "a@x.com", ToEmail: "b@x.com", Timestamp: time.Now().UTC()}
	s.Publish(evt)

	select {
	case got := <-ch:
		if got.AssetID != 1 || got.ToEmail != "b@x.com" {
			t.Fatalf("unexpected event: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}
}

func TestSubscribeClosedOnContextEnd(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancellation")
	}

	// Publishing after unsubscribe must not panic or block.
	s.Publish(TransferEvent{AssetID: 2})
}
