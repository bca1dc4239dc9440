package bus

import (
	"testing"
)

func TestFanOut(t *testing.T) {
	s := NewStream[int]()

	a := make(chan int, 4)
	b := make(chan int, 4)
	s.Subscribe("a", a)
	s.Subscribe("b", b)

	s.Publish(1)
	s.Publish(2)
	s.Publish(3)

	for name, ch := range map[string]chan int{"a": a, "b": b} {
		for want := 1; want <= 3; want++ {
			select {
			case got := <-ch:
				if got != want {
					t.Errorf("subscriber %s: got %d, want %d (in publish order)", name, got, want)
				}
			default:
				t.Fatalf("subscriber %s: missing event %d", name, want)
			}
		}
	}

	if s.Published() != 3 {
		t.Errorf("Published() = %d, want 3", s.Published())
	}
}

func TestNoReplayForLateSubscriber(t *testing.T) {
	s := NewStream[string]()

	s.Publish("early")

	late := make(chan string, 1)
	s.Subscribe("late", late)
	s.Publish("after")

	select {
	case got := <-late:
		if got != "after" {
			t.Fatalf("late subscriber got %q, want only events after subscribing", got)
		}
	default:
		t.Fatal("late subscriber missed the post-subscribe event")
	}

	select {
	case got := <-late:
		t.Fatalf("late subscriber must not see replayed event %q", got)
	default:
	}
}

func TestSlowSubscriberDropsNotBlocks(t *testing.T) {
	s := NewStream[int]()

	slow := make(chan int, 1)
	s.Subscribe("slow", slow)

	s.Publish(1) // fills the buffer
	s.Publish(2) // must not block
	s.Publish(3)

	stats, ok := s.Stats("slow")
	if !ok {
		t.Fatal("subscriber vanished")
	}
	if stats.Delivered != 1 {
		t.Errorf("Delivered = %d, want 1", stats.Delivered)
	}
	if stats.Dropped != 2 {
		t.Errorf("Dropped = %d, want 2", stats.Dropped)
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	s := NewStream[int]()

	ch := make(chan int, 1)
	s.Subscribe("x", ch)
	s.Unsubscribe("x")
	s.Unsubscribe("x") // no-op, must not panic
	s.Unsubscribe("never-subscribed")

	s.Publish(42)
	select {
	case got := <-ch:
		t.Fatalf("unsubscribed channel received %d", got)
	default:
	}
}

func TestResubscribeReplacesChannel(t *testing.T) {
	s := NewStream[int]()

	old := make(chan int, 1)
	repl := make(chan int, 1)
	s.Subscribe("x", old)
	s.Subscribe("x", repl)

	s.Publish(7)

	select {
	case got := <-repl:
		if got != 7 {
			t.Fatalf("got %d", got)
		}
	default:
		t.Fatal("replacement channel missed the event")
	}
	select {
	case <-old:
		t.Fatal("stale channel still receiving")
	default:
	}
}

func TestListenCancel(t *testing.T) {
	s := NewStream[int]()

	ch, cancel := s.Listen("listener", 2)
	s.Publish(1)

	if got := <-ch; got != 1 {
		t.Fatalf("got %d", got)
	}

	cancel()
	cancel() // idempotent

	s.Publish(2)
	select {
	case got := <-ch:
		t.Fatalf("cancelled listener received %d", got)
	default:
	}
}

func TestCloseDetaches(t *testing.T) {
	s := NewStream[int]()

	ch := make(chan int, 1)
	s.Subscribe("x", ch)
	s.Close()
	s.Close() // idempotent

	s.Publish(1)
	select {
	case got := <-ch:
		t.Fatalf("closed stream delivered %d", got)
	default:
	}

	// Subscribing after close must not panic or deliver.
	s.Subscribe("y", make(chan int, 1))
	s.Publish(2)
}
