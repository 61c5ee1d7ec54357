package commit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"
)

// OpType represents an operation kind for the commit pipeline.
type OpType string

const (
	OpUpdateShape    OpType = "update_shape"
	OpDeleteResource OpType = "delete_resource"
	OpContribute     OpType = "contribute"
)

// Op is a lightweight in-memory representation of a mutation destined
// for the persistence pipeline. Payload may be backed by a pooled
// ByteBuffer; consumers must call Item.Done() when finished.
type Op struct {
	Type     OpType
	Resource string
	Board    string
	// Actor is the authenticated actor submitting the mutation; the
	// applier enforces lock and ownership rules against it.
	Actor string
	// Payload holds the raw bytes for the operation (may be nil).
	Payload []byte
	// TS is the capture timestamp (nanoseconds).
	TS int64
	// EnqSeq is a monotonic enqueue sequence assigned when the op is
	// accepted into the in-memory queue. It preserves capture order
	// through the single worker.
	EnqSeq uint64
	// Extras holds small metadata extracted from HTTP request headers
	// (e.g. role, request id). It is optional.
	Extras map[string]string
}

// ErrQueueFull is returned by TryEnqueue when the queue is at capacity.
var ErrQueueFull = errors.New("commit queue full")

// Item wraps an Op and owns a pooled ByteBuffer if one was used. Consumers
// MUST call Done() exactly once after processing the item to return
// pooled resources.
type Item struct {
	Op *Op

	buf  *bytebufferpool.ByteBuffer
	once sync.Once
	q    *Queue
}

// Done releases internal pooled resources (buffer + op) back to the pool.
func (it *Item) Done() {
	it.once.Do(func() {
		if it.buf != nil {
			// avoid retaining huge buffers in the pool
			if cap(it.buf.B) > maxPooledBuffer {
				it.buf = nil
			} else {
				bytebufferpool.Put(it.buf)
				it.buf = nil
			}
		}
		// clear slice header to avoid retention
		if it.Op != nil {
			it.Op.Payload = nil
			it.Op.Extras = nil
			opPool.Put(it.Op)
			it.Op = nil
		}
		itemPool.Put(it)
	})
}

// Queue is a bounded in-memory queue used by the API layer to enqueue
// mutations. It is safe for concurrent producers. A single consumer
// draining Out() preserves enqueue order.
type Queue struct {
	ch       chan *Item
	capacity int
	dropped  uint64
}

var opPool = sync.Pool{New: func() any { return &Op{} }}
var itemPool = sync.Pool{New: func() any { return &Item{} }}

// maxPooledBuffer controls the largest buffer size that will be returned
// to the pooled ByteBuffer. Buffers larger than this will be dropped to
// avoid unbounded resident memory.
var maxPooledBuffer = 256 * 1024 // 256 KiB

// SetMaxPooledBuffer overrides the pooled buffer ceiling from config.
func SetMaxPooledBuffer(n int) {
	if n > 0 {
		maxPooledBuffer = n
	}
}

// NewQueue creates a new bounded Queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Queue{ch: make(chan *Item, capacity), capacity: capacity}
}

var enqSeq uint64

// DefaultQueue is the queue an api.Server falls back to when built
// without an explicit one. It can be replaced at startup by calling
// SetDefaultQueue.
var DefaultQueue = NewQueue(64 * 1024)

// SetDefaultQueue replaces the package default queue.
func SetDefaultQueue(q *Queue) {
	if q != nil {
		DefaultQueue = q
	}
}

// Out returns a read-only channel that consumers can range over to receive
// queued items. Do not close it from callers.
func (q *Queue) Out() <-chan *Item { return q.ch }

// TryEnqueue attempts to enqueue an Op by copying payload into a pooled
// buffer. If payload is nil it enqueues an Op without buffer ownership.
// If the queue is full ErrQueueFull is returned and the caller may choose
// to spill or reject.
func (q *Queue) TryEnqueue(op *Op) error {
	if Shedding() {
		atomic.AddUint64(&q.dropped, 1)
		return ErrQueueFull
	}
	newOp := opPool.Get().(*Op)
	*newOp = *op
	// copy Extras map shallowly to avoid sharing mutable maps
	if op.Extras != nil {
		newMap := make(map[string]string, len(op.Extras))
		for k, v := range op.Extras {
			newMap[k] = v
		}
		newOp.Extras = newMap
	}
	newOp.EnqSeq = atomic.AddUint64(&enqSeq, 1)

	var bb *bytebufferpool.ByteBuffer
	if len(op.Payload) > 0 {
		bb = bytebufferpool.Get()
		bb.B = append(bb.B[:0], op.Payload...)
		newOp.Payload = bb.B[:len(op.Payload)]
	}

	it := &Item{Op: newOp, buf: bb, q: q}

	select {
	case q.ch <- it:
		return nil
	default:
		if bb != nil {
			bytebufferpool.Put(bb)
		}
		opPool.Put(newOp)
		atomic.AddUint64(&q.dropped, 1)
		return ErrQueueFull
	}
}

// Enqueue attempts to enqueue op, blocking until space is available or the
// provided context is done. Returns ctx.Err() if the context expires.
func (q *Queue) Enqueue(ctx context.Context, op *Op) error {
	newOp := opPool.Get().(*Op)
	*newOp = *op
	newOp.EnqSeq = atomic.AddUint64(&enqSeq, 1)
	if op.Extras != nil {
		newMap := make(map[string]string, len(op.Extras))
		for k, v := range op.Extras {
			newMap[k] = v
		}
		newOp.Extras = newMap
	}

	var bb *bytebufferpool.ByteBuffer
	if len(op.Payload) > 0 {
		bb = bytebufferpool.Get()
		bb.B = append(bb.B[:0], op.Payload...)
		newOp.Payload = bb.B[:len(op.Payload)]
	}
	it := &Item{Op: newOp, buf: bb, q: q}

	select {
	case q.ch <- it:
		return nil
	case <-ctx.Done():
		if bb != nil {
			bytebufferpool.Put(bb)
		}
		opPool.Put(newOp)
		atomic.AddUint64(&q.dropped, 1)
		return ctx.Err()
	}
}

// CloseAndDrain closes the queue channel and drains remaining items,
// ensuring their resources are released.
func (q *Queue) CloseAndDrain() {
	close(q.ch)
	for it := range q.ch {
		it.Done()
	}
}

// RunWorker runs a worker loop that invokes handler for each dequeued Op.
// It guarantees Item.Done() is called even if handler returns an error.
// The worker exits when stop is closed or when the queue is closed.
func (q *Queue) RunWorker(stop <-chan struct{}, handler func(*Op) error) {
	for {
		select {
		case it, ok := <-q.ch:
			if !ok {
				return
			}
			func(it *Item) {
				defer it.Done()
				_ = handler(it.Op)
			}(it)
		case <-stop:
			return
		}
	}
}

// Len returns the current number of items in the queue.
func (q *Queue) Len() int { return len(q.ch) }

// Cap returns the configured capacity of the queue.
func (q *Queue) Cap() int { return q.capacity }

// shedding is set by the backpressure monitor when the pipeline is
// saturated. While set, TryEnqueue rejects new work with ErrQueueFull so
// callers surface 429s instead of piling onto a queue the applier cannot
// drain.
var shedding uint32

// SetShedding toggles load shedding for TryEnqueue.
func SetShedding(on bool) {
	if on {
		atomic.StoreUint32(&shedding, 1)
	} else {
		atomic.StoreUint32(&shedding, 0)
	}
}

// Shedding reports whether load shedding is currently active.
func Shedding() bool { return atomic.LoadUint32(&shedding) == 1 }

// Dropped returns the number of operations that were dropped due to a full
// queue or context cancellations during enqueue.
func (q *Queue) Dropped() uint64 { return atomic.LoadUint64(&q.dropped) }
