package broadcast_test

import (
	"testing"

	"github.com/nlx-io/nlx-gateway/internal/broadcast"
)

func TestPublish_DeliversToAllSubscribers(t *testing.T) {
	b := broadcast.New[int](4)
	s1 := b.Subscribe()
	s2 := b.Subscribe()

	b.Publish(42)

	for _, s := range []*broadcast.Subscription[int]{s1, s2} {
		select {
		case env := <-s.C():
			if env.Value != 42 || env.Lagged != 0 {
				t.Fatalf("got %+v, want Value=42 Lagged=0", env)
			}
		default:
			t.Fatal("subscriber did not receive published value")
		}
	}
}

func TestPublish_FullBufferDropsAndAccumulatesLag(t *testing.T) {
	b := broadcast.New[int](2)
	s := b.Subscribe()

	b.Publish(1)
	b.Publish(2)
	b.Publish(3) // buffer full (cap 2), dropped, lag=1
	b.Publish(4) // still full, dropped, lag=2

	env := <-s.C()
	if env.Value != 1 || env.Lagged != 0 {
		t.Fatalf("first delivery = %+v, want Value=1 Lagged=0", env)
	}
	env = <-s.C()
	if env.Value != 2 || env.Lagged != 0 {
		t.Fatalf("second delivery = %+v, want Value=2 Lagged=0", env)
	}

	// drain to make room, then publish again: the lag accumulated while full
	// should be attached to the next value that actually lands.
	b.Publish(5)
	env = <-s.C()
	if env.Value != 5 || env.Lagged != 2 {
		t.Fatalf("post-drop delivery = %+v, want Value=5 Lagged=2", env)
	}
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	b := broadcast.New[int](1)
	s := b.Subscribe()
	s.Unsubscribe()

	_, ok := <-s.C()
	if ok {
		t.Fatal("channel not closed after Unsubscribe")
	}

	// publishing after unsubscribe must not panic or block
	b.Publish(1)
}

func TestClose_ClosesAllChannels(t *testing.T) {
	b := broadcast.New[int](1)
	s1 := b.Subscribe()
	s2 := b.Subscribe()
	b.Close()

	for _, s := range []*broadcast.Subscription[int]{s1, s2} {
		if _, ok := <-s.C(); ok {
			t.Fatal("channel not closed after Close")
		}
	}
}

func TestSubscribe_IndependentBuffers(t *testing.T) {
	b := broadcast.New[int](1)
	slow := b.Subscribe()
	fast := b.Subscribe()

	b.Publish(1)

	envFast := <-fast.C()
	if envFast.Value != 1 {
		t.Fatalf("fast first = %+v", envFast)
	}

	b.Publish(2) // slow's buffer (cap 1) is full now, dropped for slow only

	envFast = <-fast.C()
	if envFast.Value != 2 {
		t.Fatalf("fast second = %+v", envFast)
	}

	envSlow := <-slow.C()
	if envSlow.Value != 1 || envSlow.Lagged != 0 {
		t.Fatalf("slow only delivery = %+v, want Value=1 Lagged=0", envSlow)
	}
}
