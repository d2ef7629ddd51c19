package bus

import (
	"github.com/BaSui01/agentbus/internal/channel"
	"github.com/BaSui01/agentbus/types"
)

// Subscription is one observer's live feed of state snapshots for a single
// workflow key. The first snapshot delivered is always the state current at
// subscribe time; later snapshots follow every successful mutation in lock
// order. The channel closes after the final snapshot once the record reaches
// a terminal step, or when the caller closes the subscription.
//
// Every snapshot is a deep copy owned by the receiver.
type Subscription struct {
	id  uint64
	key types.Key
	bus *Bus
	ch  *channel.Bounded[*types.StateRecord]

	// closed is guarded by the owning entry's lock. Detached subscriptions
	// for already-terminal records are born closed and never contended.
	closed bool
}

// Key returns the workflow key this subscription observes.
func (s *Subscription) Key() types.Key {
	return s.key
}

// Snapshots returns the receive channel. Buffered snapshots drain even
// after close, so the final snapshot is never lost.
func (s *Subscription) Snapshots() <-chan *types.StateRecord {
	return s.ch.Chan()
}

// Close unregisters the subscription and closes its channel. Safe to call
// more than once and safe to race with a terminal close by the bus.
func (s *Subscription) Close() {
	if s.bus != nil {
		s.bus.unsubscribe(s)
	}
}

// deliver places a snapshot in the buffer without ever blocking the
// publisher. When the buffer is full the oldest snapshot is dropped to make
// room. Caller holds the owning entry's lock, which also makes it the only
// sender, so the retry send cannot fail.
func (s *Subscription) deliver(snap *types.StateRecord) (delivered, dropped bool) {
	if s.closed {
		return false, false
	}
	if s.ch.TrySend(snap) {
		return true, false
	}
	s.ch.TryReceive()
	s.ch.TrySend(snap)
	return true, true
}

// closeLocked closes the channel exactly once. Caller holds the owning
// entry's lock.
func (s *Subscription) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	s.ch.Close()
}
