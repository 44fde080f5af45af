package queue

// Option applies a configuration option to the InMemoryQueue.
type Option func(*options)

type options struct {
	capacity   int
	bufferSize int
}

// WithCapacity sets the maximum capacity of the queue.
func WithCapacity(capacity int) Option {
	return func(o *options) {
		if capacity > 0 {
			o.capacity = capacity
		}
	}
}

// WithBufferSize sets the buffer size for the jobs channel.
func WithBufferSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.bufferSize = size
		}
	}
}
