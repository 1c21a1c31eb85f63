package events

import (
	"sync"
	"sync/atomic"
	"testing"
)

type e1 struct{ A int }
type e2 struct{ S string }

func TestBus_SubscribePublish_TypeIsolation(t *testing.T) {
	b := NewBus(nil)
	var c1 int32

	cancel := Subscribe(b, func(ev e1) {
		atomic.AddInt32(&c1, int32(ev.A))
	})
	defer cancel()

	Publish(b, e1{A: 1})
	Publish(b, e1{A: 2})
	Publish(b, e2{S: "noop"})

	if got := atomic.LoadInt32(&c1); got != 3 {
		t.Fatalf("want 3, got %d", got)
	}
}

func TestBus_Cancel_OnlyRemovesOwnSubscriber(t *testing.T) {
	b := NewBus(nil)
	var first, second int32

	cancelFirst := Subscribe(b, func(e1) { atomic.AddInt32(&first, 1) })
	cancelSecond := Subscribe(b, func(e1) { atomic.AddInt32(&second, 1) })
	defer cancelSecond()

	cancelFirst()
	cancelFirst() // second call is a no-op
	Publish(b, e1{})

	if atomic.LoadInt32(&first) != 0 || atomic.LoadInt32(&second) != 1 {
		t.Fatalf("want first=0 second=1, got %d %d", first, second)
	}
}

func TestBus_PanickingSubscriberIsIsolated(t *testing.T) {
	b := NewBus(nil)
	var hits int32
	defer Subscribe(b, func(QueueChanged) { panic("boom") })()
	defer Subscribe(b, func(QueueChanged) { atomic.AddInt32(&hits, 1) })()

	Publish(b, QueueChanged{TotalWaiting: 3})

	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("second subscriber should still run")
	}
}

func TestBus_Concurrency_NoRaces(t *testing.T) {
	b := NewBus(nil)
	var hits int32

	cancel := Subscribe(b, func(e1) {
		atomic.AddInt32(&hits, 1)
	})
	defer cancel()

	const G = 50
	const N = 100
	var wg sync.WaitGroup
	wg.Add(G)
	for g := 0; g < G; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < N; i++ {
				Publish(b, e1{A: 1})
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&hits); got != G*N {
		t.Fatalf("want %d, got %d", G*N, got)
	}
}
