package eventbus

import (
	"testing"
	"time"
)

func TestPublishFansOutAndDropsWhenFull(t *testing.T) {
	t.Parallel()

	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(4)
	defer unsubC()

	b.Publish(Event{Type: CycleCompleted})
	b.Publish(Event{Type: CycleSkipped}) // dropped for a (buffer 1)

	if e := <-a; e.Type != CycleCompleted || e.Time.IsZero() {
		t.Fatalf("unexpected event: %+v", e)
	}
	select {
	case e := <-a:
		t.Fatalf("expected drop, got %+v", e)
	case <-time.After(20 * time.Millisecond):
	}
	if len(c) != 2 {
		t.Fatalf("second subscriber should hold 2 events, has %d", len(c))
	}

	unsubA()
	unsubA()
	b.Publish(Event{Type: NotifySent}) // must not panic after unsubscribe
	if _, ok := <-a; ok {
		t.Fatalf("channel should be closed after unsubscribe")
	}
}
