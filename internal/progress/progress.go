// Package progress reports the advance of long-running generation steps.
package progress

import (
	"sync"

	"github.com/zjrosen/millflow/internal/pubsub"
)

// Sink receives progress from a generation step.
type Sink interface {
	// SetMultiple announces that count sub-steps described by label follow.
	SetMultiple(count int, label string)
	// Update reports activity within the current sub-step.
	Update(text string)
	// UpdateMultiple advances to the next sub-step.
	UpdateMultiple()
	// Finish ends the step.
	Finish()
}

// Noop discards all progress.
type Noop struct{}

func (Noop) SetMultiple(int, string) {}
func (Noop) Update(string)           {}
func (Noop) UpdateMultiple()         {}
func (Noop) Finish()                 {}

// Callback adapts a sink's Update to a plain callback. A nil sink yields a
// no-op callback.
func Callback(s Sink) func(string) {
	if s == nil {
		return func(string) {}
	}
	return s.Update
}

// Report is one progress update as published on a broker.
type Report struct {
	Label    string
	Text     string
	Index    int
	Count    int
	Finished bool
}

// Broadcast publishes progress reports on a broker so that any number of
// listeners (CLI renderers, tests) can observe them.
type Broadcast struct {
	mu     sync.Mutex
	broker *pubsub.Broker[Report]
	label  string
	index  int
	count  int
}

var _ Sink = (*Broadcast)(nil)

// NewBroadcast returns a sink publishing to broker.
func NewBroadcast(broker *pubsub.Broker[Report]) *Broadcast {
	return &Broadcast{broker: broker}
}

func (b *Broadcast) SetMultiple(count int, label string) {
	b.mu.Lock()
	b.count, b.label, b.index = count, label, 0
	r := b.report("")
	b.mu.Unlock()
	b.broker.Publish(pubsub.ProgressEvent, r)
}

func (b *Broadcast) Update(text string) {
	b.mu.Lock()
	r := b.report(text)
	b.mu.Unlock()
	b.broker.Publish(pubsub.ProgressEvent, r)
}

func (b *Broadcast) UpdateMultiple() {
	b.mu.Lock()
	if b.index < b.count {
		b.index++
	}
	r := b.report("")
	b.mu.Unlock()
	b.broker.Publish(pubsub.ProgressEvent, r)
}

func (b *Broadcast) Finish() {
	b.mu.Lock()
	r := b.report("")
	r.Finished = true
	b.mu.Unlock()
	b.broker.Publish(pubsub.FinishedEvent, r)
}

func (b *Broadcast) report(text string) Report {
	return Report{Label: b.label, Text: text, Index: b.index, Count: b.count}
}

// Recorder keeps every call it receives, for assertions.
type Recorder struct {
	mu    sync.Mutex
	calls []string
}

var _ Sink = (*Recorder)(nil)

func (r *Recorder) SetMultiple(_ int, label string) { r.record("set_multiple:" + label) }
func (r *Recorder) Update(string)                   { r.record("update") }
func (r *Recorder) UpdateMultiple()                 { r.record("update_multiple") }
func (r *Recorder) Finish()                         { r.record("finish") }

func (r *Recorder) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

// Calls returns the recorded calls in order.
func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// Count returns how often call was recorded.
func (r *Recorder) Count(call string) int {
	n := 0
	for _, c := range r.Calls() {
		if c == call {
			n++
		}
	}
	return n
}
