package wamp

import (
	"context"
	"fmt"
	"time"

	"github.com/covertnetworks/relaypulse/src/queue"
	"github.com/gammazero/nexus/v3/client"
	"github.com/gammazero/nexus/v3/wamp"
	"github.com/sirupsen/logrus"
)

// topicPrefix namespaces the queue topics within the router's realm.
const topicPrefix = "relaypulse.queue."

// Broker implements the queue.Broker interface over a WAMP router using
// WebSockets. Each named queue maps to one topic; submitting publishes to the
// topic, and every worker subscribes to the topic named after its own node.
type Broker struct {
	ownQueue  string
	routerURL string
	config    client.Config
	client    *client.Client
	consumer  chan queue.Task
	logger    *logrus.Entry
}

// NewBroker connects to the WAMP router at server and subscribes to the
// worker's own queue topic.
func NewBroker(
	server string,
	realm string,
	ownQueue string,
	responseTimeout time.Duration,
	logger *logrus.Entry,
) (*Broker, error) {

	cfg := client.Config{
		Realm:           realm,
		ResponseTimeout: responseTimeout,
		Logger:          logger,
	}

	res := &Broker{
		ownQueue:  ownQueue,
		routerURL: fmt.Sprintf("ws://%s", server),
		config:    cfg,
		consumer:  make(chan queue.Task, 16),
		logger:    logger,
	}

	if err := res.connect(); err != nil {
		return nil, err
	}

	if err := res.subscribe(); err != nil {
		res.client.Close()
		return nil, err
	}

	return res, nil
}

// connect creates a new WAMP client connected to the router. If a client
// already exists and is connected, it does nothing.
func (b *Broker) connect() error {
	if b.client != nil && b.client.Connected() {
		return nil
	}

	cli, err := client.ConnectNet(
		context.Background(),
		b.routerURL,
		b.config,
	)
	if err != nil {
		return err
	}

	b.client = cli

	return nil
}

// subscribe registers the event handler for the worker's own queue topic.
func (b *Broker) subscribe() error {
	topic := topicPrefix + b.ownQueue

	if err := b.client.Subscribe(topic, b.eventHandler, nil); err != nil {
		b.logger.WithError(err).Error("Failed to subscribe to queue topic")
		return err
	}

	b.logger.WithField("topic", topic).Debug("Subscribed to queue topic")

	return nil
}

// Submit implements the queue.Broker interface.
func (b *Broker) Submit(queueName string, task queue.Task) error {
	if !b.client.Connected() {
		return queue.ErrBrokerShutdown
	}

	args := wamp.List{
		task.Name,
		string(task.Payload),
	}

	return b.client.Publish(topicPrefix+queueName, nil, args, nil)
}

// Consumer implements the queue.Broker interface.
func (b *Broker) Consumer() <-chan queue.Task {
	return b.consumer
}

// Close implements the queue.Broker interface.
func (b *Broker) Close() error {
	b.client.Unsubscribe(topicPrefix + b.ownQueue)
	return b.client.Close()
}

// eventHandler is called for every task published to the worker's queue
// topic.
func (b *Broker) eventHandler(event *wamp.Event) {
	if len(event.Arguments) != 2 {
		b.logger.Errorf("Queue event should contain 2 arguments, not %d", len(event.Arguments))
		return
	}

	name, ok := wamp.AsString(event.Arguments[0])
	if !ok {
		b.logger.Error("Error reading queue event first argument")
		return
	}

	payload, ok := wamp.AsString(event.Arguments[1])
	if !ok {
		b.logger.Error("Error reading queue event second argument")
		return
	}

	b.consumer <- queue.Task{
		Name:    name,
		Payload: []byte(payload),
	}
}
