// Package audio provides the capture-side audio primitives for Aloud: the
// chunked FIFO queue that feeds the pipeline worker, the RMS level meter, and
// a linear PCM resampler.
//
// All PCM in this package is little-endian signed 16-bit mono. The chunk
// queue is the single back-pressure point between a network producer (the
// capture WebSocket) and the pipeline worker: a producer that outpaces the
// consumer grows the buffer without bound, so operators must cap the upstream
// rate.
package audio

import (
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by [ChunkQueue.ReadChunk] when the queue has been
// stopped. It is the "closed" sentinel the pipeline worker uses to exit its
// read loop.
var ErrClosed = errors.New("audio: chunk queue closed")

const (
	// TargetSampleRate is the sample rate the STT engine expects. Runs
	// arriving at any other rate are resampled before buffering.
	TargetSampleRate = 16000

	// readWaitGranularity bounds how long a blocked reader sleeps between
	// checks. A stop is therefore observed within one wait cycle even if no
	// producer signal ever arrives.
	readWaitGranularity = 300 * time.Millisecond

	// MinSensitivity and MaxSensitivity bound the stored capture gain
	// multiplier.
	MinSensitivity = 0.1
	MaxSensitivity = 10.0
)

// ChunkQueue buffers variable-sized PCM byte runs from one producer and hands
// out fixed-size chunks to a single consumer. Runs are immutable after
// enqueue; ReadChunk copies bytes out of the FIFO head, splitting the last
// run when a chunk boundary falls inside it.
//
// The queue is safe for one producer and one consumer operating concurrently;
// additional producers are tolerated but not expected in practice.
type ChunkQueue struct {
	mu          sync.Mutex
	chunkSize   int
	runs        [][]byte
	buffered    int
	started     bool
	clientRate  int
	sensitivity float64

	// signal wakes a blocked reader after a Put or Stop. Capacity one: a
	// single pending wake-up is enough because the reader re-checks state
	// under the lock on every cycle.
	signal chan struct{}
}

// NewChunkQueue creates a queue that assembles chunks of exactly
// chunkSizeBytes. chunkSizeBytes must be a positive multiple of 2 (int16
// samples).
func NewChunkQueue(chunkSizeBytes int) *ChunkQueue {
	if chunkSizeBytes <= 0 || chunkSizeBytes%2 != 0 {
		panic("audio: chunk size must be a positive multiple of 2")
	}
	return &ChunkQueue{
		chunkSize:   chunkSizeBytes,
		sensitivity: 1.0,
		signal:      make(chan struct{}, 1),
	}
}

// ChunkSize returns the current chunk size in bytes.
func (q *ChunkQueue) ChunkSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.chunkSize
}

// SetChunkSize changes the assembled chunk size. The new size must be a
// positive multiple of 2 (int16 samples); other values are ignored. Takes
// effect on the reader's next assembly cycle.
func (q *ChunkQueue) SetChunkSize(bytes int) {
	if bytes <= 0 || bytes%2 != 0 {
		return
	}
	q.mu.Lock()
	q.chunkSize = bytes
	q.mu.Unlock()
	q.wake()
}

// Start clears any previously buffered runs and marks the queue as accepting
// input. It is safe to call Start again after Stop to reuse the queue.
func (q *ChunkQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.runs = nil
	q.buffered = 0
	q.started = true
}

// Stop marks the queue closed and wakes any blocked reader, which then
// returns [ErrClosed]. Buffered data is discarded.
func (q *ChunkQueue) Stop() {
	q.mu.Lock()
	q.started = false
	q.runs = nil
	q.buffered = 0
	q.mu.Unlock()
	q.wake()
}

// SetClientSampleRate declares the sample rate of subsequently enqueued runs.
// When rate differs from [TargetSampleRate], every Put is linearly resampled
// to 16 kHz before buffering. A rate of 0 (or 16000) disables resampling.
func (q *ChunkQueue) SetClientSampleRate(rate int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if rate == TargetSampleRate {
		rate = 0
	}
	q.clientRate = rate
}

// Put appends a run of PCM bytes to the FIFO. Runs enqueued before Start or
// after Stop are ignored. Odd trailing bytes are dropped to keep the buffer
// int16-aligned.
func (q *ChunkQueue) Put(b []byte) {
	if len(b) == 0 {
		return
	}
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	if q.clientRate > 0 {
		b = ResampleMono16(b, q.clientRate, TargetSampleRate)
	} else {
		// Copy so the caller may reuse its buffer.
		b = append([]byte(nil), b...)
	}
	if len(b)%2 != 0 {
		b = b[:len(b)-1]
	}
	if len(b) == 0 {
		q.mu.Unlock()
		return
	}
	q.runs = append(q.runs, b)
	q.buffered += len(b)
	q.mu.Unlock()
	q.wake()
}

// Buffered returns the current buffered byte count. It always equals the sum
// of the lengths of the queued runs.
func (q *ChunkQueue) Buffered() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.buffered
}

// ReadChunk blocks until at least ChunkSize bytes are buffered or the queue
// is stopped. On success it returns exactly ChunkSize bytes assembled from
// the FIFO head. When the queue is stopped it returns [ErrClosed].
//
// If onLevel is non-nil it is invoked with the RMS level of the returned
// chunk before ReadChunk returns.
func (q *ChunkQueue) ReadChunk(onLevel func(level float64)) ([]byte, error) {
	for {
		q.mu.Lock()
		if !q.started {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		if q.buffered >= q.chunkSize {
			chunk := q.assembleLocked()
			q.mu.Unlock()
			if onLevel != nil {
				onLevel(RMS(chunk))
			}
			return chunk, nil
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-time.After(readWaitGranularity):
		}
	}
}

// Sensitivity returns the stored capture gain multiplier.
func (q *ChunkQueue) Sensitivity() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sensitivity
}

// SetSensitivity stores a new capture gain multiplier, clamped to
// [MinSensitivity, MaxSensitivity].
func (q *ChunkQueue) SetSensitivity(v float64) {
	if v < MinSensitivity {
		v = MinSensitivity
	} else if v > MaxSensitivity {
		v = MaxSensitivity
	}
	q.mu.Lock()
	q.sensitivity = v
	q.mu.Unlock()
}

// assembleLocked removes exactly chunkSize bytes from the FIFO head and
// returns them as a fresh slice. The last consumed run is split when the
// chunk boundary falls inside it. Must be called with q.mu held and
// q.buffered >= q.chunkSize.
func (q *ChunkQueue) assembleLocked() []byte {
	chunk := make([]byte, 0, q.chunkSize)
	for len(chunk) < q.chunkSize {
		need := q.chunkSize - len(chunk)
		head := q.runs[0]
		if len(head) <= need {
			chunk = append(chunk, head...)
			q.runs = q.runs[1:]
		} else {
			chunk = append(chunk, head[:need]...)
			q.runs[0] = head[need:]
		}
	}
	q.buffered -= q.chunkSize
	if len(q.runs) == 0 {
		q.runs = nil
	}
	return chunk
}

// wake delivers at most one pending wake-up to the reader.
func (q *ChunkQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
