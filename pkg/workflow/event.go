package workflow

import (
	"sync"

	"k8s.io/klog/v2"

	"github.com/aimd-lab/director/dao/model"
)

// Publisher receives domain events after their transaction has committed.
// The engine never blocks a transition on event delivery.
type Publisher interface {
	Publish(event *model.ApprovalEvent)
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(event *model.ApprovalEvent)

func (f PublisherFunc) Publish(event *model.ApprovalEvent) { f(event) }

const subscriberBuffer = 16

// Fanout is an in-process event broadcaster. The notifier, the metrics
// hook and the dashboard activity feed subscribe to it. Slow subscribers
// drop events rather than stalling the engine.
type Fanout struct {
	mu   sync.RWMutex
	subs map[uint64]chan *model.ApprovalEvent
	next uint64
}

func NewFanout() *Fanout {
	return &Fanout{
		subs: make(map[uint64]chan *model.ApprovalEvent),
	}
}

// Subscribe registers a new subscriber. The returned cancel function must
// be called to release it; the channel is closed on cancel.
func (f *Fanout) Subscribe() (<-chan *model.ApprovalEvent, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.next
	f.next++
	ch := make(chan *model.ApprovalEvent, subscriberBuffer)
	f.subs[id] = ch

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if sub, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (f *Fanout) Publish(event *model.ApprovalEvent) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, ch := range f.subs {
		select {
		case ch <- event:
		default:
			klog.Warningf("approval event %s dropped for a slow subscriber", event.UID)
		}
	}
}
