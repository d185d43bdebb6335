package eventbus

import (
	"testing"
	"time"
)

func TestFanoutDeliversToAllSubscribers(t *testing.T) {
	t.Parallel()
	b := New()

	ch1, unsub1 := b.Subscribe(4)
	ch2, unsub2 := b.Subscribe(4)
	defer unsub1()
	defer unsub2()

	b.Publish(Event{Topic: TopicTaskOK, Data: "x"})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case e := <-ch:
			if e.Topic != TopicTaskOK {
				t.Fatalf("subscriber %d got topic %q", i, e.Topic)
			}
			if e.Time.IsZero() {
				t.Fatalf("subscriber %d got zero timestamp", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d never received the event", i)
		}
	}
}

func TestPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	t.Parallel()
	b := New()

	_, unsub := b.Subscribe(1) // never drained
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(Event{Topic: TopicDispatchOK})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Publish blocked on a full subscriber")
	}
}

func TestUnsubscribeStopsDeliveryAndClosesChannel(t *testing.T) {
	t.Parallel()
	b := New()

	ch, unsub := b.Subscribe(4)
	unsub()
	unsub() // idempotent

	b.Publish(Event{Topic: TopicTaskFailed})

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("received event after unsubscribe")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed after unsubscribe")
	}
}

func TestPublishWithNoSubscribers(t *testing.T) {
	t.Parallel()
	b := New()
	b.Publish(Event{Topic: TopicTaskSkipped}) // must not panic
}
