package process

import "sync"

// ringBuffer holds the last cap(buf) bytes written to it in a fixed circular
// array. The runner tees stderr into one so a failed attempt can report what
// the tool printed last without buffering the whole stream.
type ringBuffer struct {
	mu      sync.Mutex
	buf     []byte
	start   int // index of the oldest byte
	size    int
	dropped int64
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &ringBuffer{buf: make([]byte, capacity)}
}

func (rb *ringBuffer) Write(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := len(p)
	capacity := len(rb.buf)
	if n >= capacity {
		rb.dropped += int64(rb.size + n - capacity)
		copy(rb.buf, p[n-capacity:])
		rb.start, rb.size = 0, capacity
		return n, nil
	}
	for _, b := range p {
		end := (rb.start + rb.size) % capacity
		rb.buf[end] = b
		if rb.size < capacity {
			rb.size++
		} else {
			rb.start = (rb.start + 1) % capacity
			rb.dropped++
		}
	}
	return n, nil
}

// String returns the retained bytes, oldest first.
func (rb *ringBuffer) String() string {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	out := make([]byte, 0, rb.size)
	if rb.start+rb.size <= len(rb.buf) {
		out = append(out, rb.buf[rb.start:rb.start+rb.size]...)
	} else {
		out = append(out, rb.buf[rb.start:]...)
		out = append(out, rb.buf[:rb.start+rb.size-len(rb.buf)]...)
	}
	return string(out)
}

func (rb *ringBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.size
}

// Dropped is the number of bytes overwritten since creation.
func (rb *ringBuffer) Dropped() int64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.dropped
}
