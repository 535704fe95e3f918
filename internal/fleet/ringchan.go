package fleet

import "sync/atomic"

// ringChannel is a bounded channel with overwrite-oldest semantics, so a slow
// consumer of state updates never stalls the poll loop.
type ringChannel[T any] struct {
	ch          chan T
	overwritten atomic.Int64
}

func newRingChannel[T any](capacity int) *ringChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &ringChannel[T]{ch: make(chan T, capacity)}
}

func (rc *ringChannel[T]) C() <-chan T { return rc.ch }

// ForceSend never blocks; it reports whether an older value was dropped.
func (rc *ringChannel[T]) ForceSend(v T) bool {
	select {
	case rc.ch <- v:
		return false
	default:
	}

	dropped := false
	select {
	case <-rc.ch:
		rc.overwritten.Add(1)
		dropped = true
	default:
	}

	select {
	case rc.ch <- v:
	default:
		// a concurrent sender won the freed slot
		rc.overwritten.Add(1)
		dropped = true
	}
	return dropped
}

func (rc *ringChannel[T]) Overwritten() int64 { return rc.overwritten.Load() }
