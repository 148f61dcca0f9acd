package session

import (
	"strconv"
	"sync"
	"time"
)

// Message is a cross-tab notification. Receivers must not rely on Value
// beyond the fact that it changed.
type Message struct {
	Value string
}

// Channel carries messages between the tabs of one browser profile.
type Channel interface {
	Publish(msg Message) error
	OnMessage(fn func(Message)) (cancel func())
}

// StorageChannel is a Channel backed by change events on a single
// DurableStore key.
type StorageChannel struct {
	store DurableStore
	key   string
	now   func() time.Time

	mu   sync.Mutex
	last int64
}

var _ Channel = (*StorageChannel)(nil)

func NewStorageChannel(store DurableStore, key string) *StorageChannel {
	return &StorageChannel{store: store, key: key, now: time.Now}
}

// Publish writes msg.Value to the key, or a fresh nanosecond timestamp when
// the message is empty. Stores only emit events for values that change, so
// the timestamp must differ from the last one written.
func (c *StorageChannel) Publish(msg Message) error {
	value := msg.Value
	if value == "" {
		c.mu.Lock()
		ts := c.now().UnixNano()
		if ts <= c.last {
			ts = c.last + 1
		}
		c.last = ts
		c.mu.Unlock()
		value = strconv.FormatInt(ts, 10)
	}
	return c.store.Set(c.key, value)
}

func (c *StorageChannel) OnMessage(fn func(Message)) (cancel func()) {
	return c.store.Watch(func(ev StorageEvent) {
		if ev.Key != c.key || ev.Removed || ev.NewValue == "" {
			return
		}
		fn(Message{Value: ev.NewValue})
	})
}
