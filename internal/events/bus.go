// Package events is the in-process push channel: components publish typed
// state-change events and transports (websocket streams) subscribe to them.
package events

import (
	"reflect"
	"sync"

	"go.uber.org/zap"
)

type subscriber struct {
	id int
	fn func(any)
}

type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string][]subscriber // type name -> subscribers
	log    *zap.Logger
}

func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{subs: map[string][]subscriber{}, log: log}
}

func typeNameOf[T any]() string {
	var zero *T
	rt := reflect.TypeOf(zero).Elem()
	return rt.PkgPath() + "." + rt.Name()
}

// Subscribe registers fn for events of type T and returns the unsubscribe func.
func Subscribe[T any](b *Bus, fn func(T)) func() {
	name := typeNameOf[T]()
	wrapped := func(v any) {
		if ev, ok := v.(T); ok {
			fn(ev)
		}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[name] = append(b.subs[name], subscriber{id: id, fn: wrapped})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		ss := b.subs[name]
		for i, s := range ss {
			if s.id == id {
				b.subs[name] = append(ss[:i:i], ss[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers ev synchronously to every subscriber of T. A panicking
// subscriber is logged and does not affect the others.
func Publish[T any](b *Bus, ev T) {
	if b == nil {
		return
	}
	name := typeNameOf[T]()
	b.mu.RLock()
	ss := append([]subscriber(nil), b.subs[name]...)
	b.mu.RUnlock()
	for _, s := range ss {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.log.Error("subscriber panic", zap.String("event", name), zap.Any("panic", r))
				}
			}()
			s.fn(ev)
		}()
	}
}
