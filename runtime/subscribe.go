package runtime

import (
	"github.com/kimberlitedb/kimberlite-sub005/ids"
	"github.com/kimberlitedb/kimberlite-sub005/ledger"
)

// subscriberBuffer bounds a live tail's channel so a slow client can
// never backpressure the replica's single-threaded event loop; a
// subscriber that falls behind drops entries rather than stalls applies.
const subscriberBuffer = 64

type subscriber struct {
	ch chan ledger.LogEntry
}

// Subscribe registers a live tail for stream, returning a channel of
// every entry appended to it from this point on and a cancel function
// the caller must invoke once it stops reading.
func (r *Runtime) Subscribe(stream ids.StreamId) (<-chan ledger.LogEntry, func()) {
	sub := &subscriber{ch: make(chan ledger.LogEntry, subscriberBuffer)}

	r.subsMu.Lock()
	r.subs[stream] = append(r.subs[stream], sub)
	r.subsMu.Unlock()

	cancel := func() {
		r.subsMu.Lock()
		defer r.subsMu.Unlock()
		list := r.subs[stream]
		for i, s := range list {
			if s == sub {
				r.subs[stream] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
	return sub.ch, cancel
}

// notifySubscribers fans entry out to every live subscriber of its
// stream. A full buffer means a stalled reader; the entry is dropped
// for that subscriber rather than blocking the event loop goroutine.
func (r *Runtime) notifySubscribers(entry ledger.LogEntry) {
	r.subsMu.Lock()
	list := r.subs[entry.Stream]
	r.subsMu.Unlock()
	for _, sub := range list {
		select {
		case sub.ch <- entry:
		default:
		}
	}
}
