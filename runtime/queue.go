// Package runtime drives one replica: it pulls events from a single
// per-replica queue, feeds them to vsr.Replica and kernel.Apply, and
// performs the effects those transitions produce (log appends, audit
// emission, key rotation). It is the only component allowed to touch
// the clock, the disk, and the network (§4.6).
package runtime

import (
	"container/heap"
	"context"
	"time"

	"github.com/kimberlitedb/kimberlite-sub005/ids"
	"github.com/kimberlitedb/kimberlite-sub005/kernel"
)

// Event is anything the runtime's loop can pull off the queue and hand
// to the replica: an inbound protocol message, a locally-originated
// client command, or a fired timer.
type Event interface{ isEvent() }

// ClientCommandEvent carries a command accepted from a client
// connection, to be proposed if this replica is the current leader.
type ClientCommandEvent struct {
	Cmd kernel.Command
	// ReqID correlates this event back to a pending SubmitAndWait call,
	// zero when the command was proposed without a caller awaiting its
	// effects (e.g. internally-generated commands).
	ReqID uint64
}

// InboundMessageEvent carries a VSR protocol message received from
// another replica.
type InboundMessageEvent struct {
	From    ids.ReplicaId
	Message interface{}
}

// TimerEvent fires when a previously scheduled timer (election
// timeout, heartbeat interval) comes due.
type TimerEvent struct {
	ID string
}

func (ClientCommandEvent) isEvent()  {}
func (InboundMessageEvent) isEvent() {}
func (TimerEvent) isEvent()          {}

// EventQueue is the single serialization point for one replica: a
// buffered channel for externally-produced events plus a
// container/heap timer wheel for scheduled timeouts — both confined to
// stdlib, since this is an internal scheduling primitive rather than a
// distinct product concern any pack library targets.
type EventQueue struct {
	events chan Event
	timers *timerHeap
}

// NewEventQueue constructs an EventQueue with the given channel capacity.
func NewEventQueue(capacity int) *EventQueue {
	h := &timerHeap{}
	heap.Init(h)
	return &EventQueue{events: make(chan Event, capacity), timers: h}
}

// Push enqueues an externally-produced event (inbound message, client
// command). Safe to call from any goroutine.
func (q *EventQueue) Push(e Event) {
	q.events <- e
}

// ScheduleTimer arranges for a TimerEvent carrying id to be delivered
// by Next no earlier than at.
func (q *EventQueue) ScheduleTimer(id string, at time.Time) {
	heap.Push(q.timers, timerEntry{at: at, id: id})
}

// Next blocks until an event is ready: either an externally-pushed
// event, or the next due timer. Returns false if ctx is done first.
func (q *EventQueue) Next(ctx context.Context) (Event, bool) {
	for {
		if q.timers.Len() > 0 {
			head := (*q.timers)[0]
			d := time.Until(head.at)
			if d <= 0 {
				heap.Pop(q.timers)
				return TimerEvent{ID: head.id}, true
			}
			timer := time.NewTimer(d)
			select {
			case e := <-q.events:
				timer.Stop()
				return e, true
			case <-timer.C:
				continue
			case <-ctx.Done():
				timer.Stop()
				return nil, false
			}
		}
		select {
		case e := <-q.events:
			return e, true
		case <-ctx.Done():
			return nil, false
		}
	}
}

type timerEntry struct {
	at time.Time
	id string
}

type timerHeap []timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x interface{}) { *h = append(*h, x.(timerEntry)) }
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
