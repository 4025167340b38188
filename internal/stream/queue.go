package stream

import (
	"context"
	"sync"
	"sync/atomic"

	"rppg-dashboard/internal/model"
)

const DefaultQueueSize = 30

// FrameQueue is the bounded hand-off between capture and the uplink. Push never
// blocks: when the queue is full the oldest frame is evicted.
type FrameQueue struct {
	frames    chan model.EncodedFrameMessage
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex

	pushed  atomic.Uint64
	evicted atomic.Uint64
}

func NewFrameQueue(size int) *FrameQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &FrameQueue{
		frames: make(chan model.EncodedFrameMessage, size),
		done:   make(chan struct{}),
	}
}

// Push enqueues msg and reports whether an older frame was evicted for it.
// Pushing after Close is a no-op.
func (q *FrameQueue) Push(msg model.EncodedFrameMessage) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	select {
	case <-q.done:
		return false
	default:
	}

	evicted := false
	for {
		select {
		case q.frames <- msg:
			q.pushed.Add(1)
			return evicted
		default:
		}
		select {
		case <-q.frames:
			q.evicted.Add(1)
			evicted = true
		default:
		}
	}
}

// Pop waits for the next frame. ok is false once the queue is closed and
// drained, or when ctx ends.
func (q *FrameQueue) Pop(ctx context.Context) (model.EncodedFrameMessage, bool) {
	select {
	case msg := <-q.frames:
		return msg, true
	default:
	}
	select {
	case <-ctx.Done():
		return model.EncodedFrameMessage{}, false
	case msg := <-q.frames:
		return msg, true
	case <-q.done:
		select {
		case msg := <-q.frames:
			return msg, true
		default:
			return model.EncodedFrameMessage{}, false
		}
	}
}

func (q *FrameQueue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		close(q.done)
		q.mu.Unlock()
	})
}

func (q *FrameQueue) Closed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

func (q *FrameQueue) Len() int {
	return len(q.frames)
}

func (q *FrameQueue) Cap() int {
	return cap(q.frames)
}

func (q *FrameQueue) Evicted() uint64 {
	return q.evicted.Load()
}

func (q *FrameQueue) Pushed() uint64 {
	return q.pushed.Load()
}
