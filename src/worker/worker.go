package worker

import (
	"sync"

	"github.com/covertnetworks/relaypulse/src/delivery"
	"github.com/covertnetworks/relaypulse/src/queue"
	"github.com/sirupsen/logrus"
)

// Stats is a snapshot of a worker's activity.
type Stats struct {
	State    string         `json:"state"`
	Executed int            `json:"executed"`
	ByState  map[string]int `json:"by_state"`
}

// Worker consumes distribution tasks from its node's queue and executes them
// through the delivery handler. A worker that produces too many consecutive
// FAILED results suspends itself instead of burning through the queue.
type Worker struct {
	state

	handler *delivery.Handler
	broker  queue.Broker

	// suspendLimit is the number of consecutive FAILED results after which
	// the worker suspends itself. 0 disables self-suspension.
	suspendLimit        int
	consecutiveFailures int

	resumeCh     chan struct{}
	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	statsLock sync.RWMutex
	executed  int
	byState   map[string]int

	logger *logrus.Entry
}

// New instantiates a Worker consuming from the broker's own queue.
func New(
	handler *delivery.Handler,
	broker queue.Broker,
	suspendLimit int,
	logger *logrus.Entry,
) *Worker {

	return &Worker{
		handler:      handler,
		broker:       broker,
		suspendLimit: suspendLimit,
		resumeCh:     make(chan struct{}, 1),
		shutdownCh:   make(chan struct{}),
		byState:      make(map[string]int),
		logger:       logger,
	}
}

// Run consumes and executes tasks until Shutdown. This is a blocking call.
func (w *Worker) Run() {
	for {
		switch w.getState() {
		case Running:
			select {
			case task, ok := <-w.broker.Consumer():
				if !ok {
					w.Shutdown()
					return
				}
				w.process(task)
			case <-w.shutdownCh:
				return
			}
		case Suspended:
			select {
			case <-w.resumeCh:
			case <-w.shutdownCh:
				return
			}
		case Shutdown:
			return
		}
	}
}

// process executes one queue envelope.
func (w *Worker) process(envelope queue.Task) {
	if envelope.Name != delivery.TaskName {
		w.logger.WithField("name", envelope.Name).Warning("Ignoring unknown task")
		return
	}

	task := new(delivery.Task)
	if err := task.Unmarshal(envelope.Payload); err != nil {
		w.logger.WithError(err).Error("Failed to decode task")
		return
	}

	result := w.handler.Execute(task, w.broker)

	w.record(result)
}

// record updates the stats counters and the consecutive-failure guard.
func (w *Worker) record(result *delivery.Result) {
	w.statsLock.Lock()
	w.executed++
	w.byState[result.State.String()]++
	w.statsLock.Unlock()

	if w.suspendLimit == 0 {
		return
	}

	if result.State == delivery.Failed {
		w.consecutiveFailures++
		if w.consecutiveFailures >= w.suspendLimit {
			w.logger.WithField("failures", w.consecutiveFailures).
				Warning("Suspending after consecutive failures")
			w.Suspend()
		}
	} else {
		w.consecutiveFailures = 0
	}
}

// Suspend stops task execution without shutting down. Queued tasks wait.
func (w *Worker) Suspend() {
	if w.getState() == Running {
		w.logger.Debug("Suspend")
		w.setState(Suspended)
	}
}

// Resume restarts task execution after a suspension.
func (w *Worker) Resume() {
	if w.getState() == Suspended {
		w.logger.Debug("Resume")
		w.consecutiveFailures = 0
		w.setState(Running)
		select {
		case w.resumeCh <- struct{}{}:
		default:
		}
	}
}

// Shutdown terminates the worker and closes its broker connection.
func (w *Worker) Shutdown() {
	w.shutdownOnce.Do(func() {
		w.logger.Debug("Shutdown")
		w.setState(Shutdown)
		close(w.shutdownCh)

		if err := w.broker.Close(); err != nil {
			w.logger.WithError(err).Error("Failed to close broker")
		}
	})
}

// GetState returns the worker's current state.
func (w *Worker) GetState() State {
	return w.getState()
}

// GetStats returns a snapshot of the worker's activity.
func (w *Worker) GetStats() Stats {
	w.statsLock.RLock()
	defer w.statsLock.RUnlock()

	byState := make(map[string]int, len(w.byState))
	for k, v := range w.byState {
		byState[k] = v
	}

	return Stats{
		State:    w.getState().String(),
		Executed: w.executed,
		ByState:  byState,
	}
}
