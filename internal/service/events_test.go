package service

import (
	"sync"
	"testing"
	"time"

	"github.com/wenqinglim/euterpe/internal/domain"
)

func TestNewEventBroadcaster(t *testing.T) {
	t.Run("with default buffer size", func(t *testing.T) {
		b := NewEventBroadcaster(0)
		if b == nil {
			t.Fatal("expected non-nil broadcaster")
		}
		if b.bufferSize != 100 {
			t.Errorf("expected buffer size 100, got %d", b.bufferSize)
		}
	})

	t.Run("with custom buffer size", func(t *testing.T) {
		b := NewEventBroadcaster(50)
		if b.bufferSize != 50 {
			t.Errorf("expected buffer size 50, got %d", b.bufferSize)
		}
	})
}

func TestEventBroadcaster_SubscribeUnsubscribe(t *testing.T) {
	b := NewEventBroadcaster(10)

	sub := b.Subscribe("sub1", "job1")
	if sub.ID != "sub1" || sub.JobID != "job1" || sub.Events == nil {
		t.Fatalf("unexpected subscriber %+v", sub)
	}
	if b.SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber, got %d", b.SubscriberCount())
	}

	b.Unsubscribe("sub1")
	if b.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", b.SubscriberCount())
	}
	if _, ok := <-sub.Events; ok {
		t.Error("expected events channel to be closed")
	}

	// Unsubscribing twice is harmless.
	b.Unsubscribe("sub1")
}

func TestEventBroadcaster_FiltersByJob(t *testing.T) {
	b := NewEventBroadcaster(10)
	one := b.Subscribe("one", "job1")
	all := b.Subscribe("all", "")

	b.Broadcast(domain.NewProgressEvent("job1", "a.mid", 1, 2, 0))
	b.Broadcast(domain.NewProgressEvent("job2", "b.mid", 1, 2, 0))

	if len(one.Events) != 1 {
		t.Errorf("job subscriber got %d events, want 1", len(one.Events))
	}
	if len(all.Events) != 2 {
		t.Errorf("wildcard subscriber got %d events, want 2", len(all.Events))
	}
}

func TestEventBroadcaster_AssignsIncreasingIDs(t *testing.T) {
	b := NewEventBroadcaster(10)
	sub := b.Subscribe("s", "")

	first := b.Broadcast(domain.NewProgressEvent("job1", "a.mid", 1, 2, 0))
	second := b.Broadcast(domain.NewProgressEvent("job1", "b.mid", 2, 2, 0))
	if first.ID == 0 || second.ID <= first.ID {
		t.Fatalf("ids = %d, %d", first.ID, second.ID)
	}

	select {
	case e := <-sub.Events:
		if e.ID != first.ID {
			t.Errorf("delivered id = %d, want %d", e.ID, first.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestEventBroadcaster_SlowSubscriberDropsEvents(t *testing.T) {
	b := NewEventBroadcaster(2)
	sub := b.Subscribe("slow", "")

	for i := 0; i < 5; i++ {
		b.Broadcast(domain.NewProgressEvent("job1", "x.mid", i, 5, 0))
	}
	if len(sub.Events) != 2 {
		t.Errorf("buffered %d events, want 2", len(sub.Events))
	}
}

func TestEventBroadcaster_Concurrent(t *testing.T) {
	b := NewEventBroadcaster(1000)
	sub := b.Subscribe("s", "")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				b.Broadcast(domain.NewProgressEvent("job1", "x.mid", j, 50, 0))
			}
		}()
	}
	wg.Wait()

	if len(sub.Events) != 500 {
		t.Errorf("received %d events, want 500", len(sub.Events))
	}
}
