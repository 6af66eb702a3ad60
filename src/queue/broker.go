package queue

import "errors"

// FeedbackQueue is the fixed queue on which feedback records are published.
const FeedbackQueue = "feedback"

// Task is the unit of work circulated through the task queue. The payload is
// opaque to the broker; producers and consumers agree on its encoding.
type Task struct {
	Name    string
	Payload []byte
}

// ErrBrokerShutdown is returned when operations on a broker are invoked after
// it's been closed.
var ErrBrokerShutdown = errors.New("broker shutdown")

// Broker provides an interface for named-queue task distribution with
// at-least-once delivery. The queue name equals the identifier of the sending
// node that must perform the work, so that work is routed to the node able to
// do it, or the fixed feedback queue.
type Broker interface {

	// Submit enqueues a task on a named queue.
	Submit(queue string, task Task) error

	// Consumer returns the channel delivering tasks from this worker's own
	// queue.
	Consumer() <-chan Task

	// Close permanently closes the broker connection.
	Close() error
}
