package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Watcher follows whichever topic it was last given. Changing the topic
// closes the previous Subscription and starts over with an empty log; an
// empty topic means no subscription at all
type Watcher struct {
	ctx context.Context
	sub *Subscriber

	mu      sync.Mutex
	topic   string
	current *Subscription
	// failed holds why topic has no Subscription
	failed *Status
}

func NewWatcher(ctx context.Context, sub *Subscriber) *Watcher {
	return &Watcher{ctx: ctx, sub: sub}
}

// SetTopic switches the Watcher to topic. Setting the current topic again
// keeps the existing Subscription and its log
func (w *Watcher) SetTopic(topic string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if topic == w.topic && (w.current != nil || topic == "") {
		return nil
	}

	if err := w.current.Close(); err != nil {
		return err
	}
	w.current = nil
	w.failed = nil
	w.topic = topic

	if topic == "" {
		return nil
	}
	s, err := w.sub.Subscribe(w.ctx, topic)
	if err != nil {
		w.failed = &Status{State: Closed, At: time.Now(), Err: err}
		return err
	}
	w.current = s
	return nil
}

func (w *Watcher) Topic() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.topic
}

func (w *Watcher) Events() []json.RawMessage {
	return w.Subscription().Events()
}

// Status reports the active Subscription's state. A topic that could not
// be subscribed reports Closed with the cause
func (w *Watcher) Status() Status {
	w.mu.Lock()
	current, failed := w.current, w.failed
	w.mu.Unlock()
	if current == nil && failed != nil {
		return *failed
	}
	return current.Status()
}

// Subscription is the active Subscription, or nil when idle
func (w *Watcher) Subscription() *Subscription {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

func (w *Watcher) Close() error {
	return w.SetTopic("")
}
