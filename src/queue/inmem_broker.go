package queue

import "sync"

const inmemQueueDepth = 1024

// InmemHub routes tasks between in-memory queues. It implements the broker
// contract without going over a network, to allow the failover task to be
// tested end to end.
type InmemHub struct {
	sync.Mutex
	queues map[string]chan Task
}

// NewInmemHub ...
func NewInmemHub() *InmemHub {
	return &InmemHub{
		queues: make(map[string]chan Task),
	}
}

// queue returns the channel backing a named queue, creating it on first use
// so that submissions ahead of the consumer are not lost.
func (h *InmemHub) queue(name string) chan Task {
	h.Lock()
	defer h.Unlock()

	ch, ok := h.queues[name]
	if !ok {
		ch = make(chan Task, inmemQueueDepth)
		h.queues[name] = ch
	}

	return ch
}

// InmemBroker is one worker's connection to an InmemHub.
type InmemBroker struct {
	hub      *InmemHub
	ownQueue string

	shutdown     bool
	shutdownLock sync.Mutex
}

// Broker connects a worker consuming from the named queue.
func (h *InmemHub) Broker(ownQueue string) *InmemBroker {
	// materialize the queue upfront
	h.queue(ownQueue)

	return &InmemBroker{
		hub:      h,
		ownQueue: ownQueue,
	}
}

// Submit implements the Broker interface.
func (b *InmemBroker) Submit(queue string, task Task) error {
	b.shutdownLock.Lock()
	defer b.shutdownLock.Unlock()

	if b.shutdown {
		return ErrBrokerShutdown
	}

	b.hub.queue(queue) <- task

	return nil
}

// Consumer implements the Broker interface.
func (b *InmemBroker) Consumer() <-chan Task {
	return b.hub.queue(b.ownQueue)
}

// Close implements the Broker interface.
func (b *InmemBroker) Close() error {
	b.shutdownLock.Lock()
	defer b.shutdownLock.Unlock()

	b.shutdown = true

	return nil
}
