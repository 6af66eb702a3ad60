package worker

import (
	"testing"
	"time"

	"github.com/covertnetworks/relaypulse/src/common"
	"github.com/covertnetworks/relaypulse/src/delivery"
	"github.com/covertnetworks/relaypulse/src/metrics"
	"github.com/covertnetworks/relaypulse/src/nodeapi"
	"github.com/covertnetworks/relaypulse/src/peers"
	"github.com/covertnetworks/relaypulse/src/queue"
	"github.com/covertnetworks/relaypulse/src/registry"
	"github.com/covertnetworks/relaypulse/src/reward"
	"github.com/covertnetworks/relaypulse/src/scheduler"
)

func newTestWorker(t *testing.T, hub *queue.InmemHub, distribution bool, suspendLimit int) *Worker {
	logger := common.NewTestEntry(t)
	client := nodeapi.NewInmemClient("node1")

	sched := scheduler.New(
		client,
		registry.NewInmemStore(),
		4,
		800,
		time.Millisecond,
		10*time.Millisecond,
		logger,
	)

	handler := delivery.NewHandler(
		client,
		sched,
		metrics.NewInmemRecorder(),
		nil,
		delivery.Options{
			ListenHost:    "127.0.0.1",
			SocketTimeout: 10 * time.Millisecond,
			TimeoutBudget: time.Hour,
			MaxAttempts:   4,
			Distribution:  distribution,
		},
		logger,
	)

	return New(handler, hub.Broker("node1"), suspendLimit, logger)
}

func submitTask(t *testing.T, hub *queue.InmemHub, task *delivery.Task) {
	payload, err := task.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	err = hub.Broker("producer").Submit("node1", queue.Task{
		Name:    delivery.TaskName,
		Payload: payload,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestWorkerProcess(t *testing.T) {
	hub := queue.NewInmemHub()

	// distribution disabled makes every task terminate in SKIPPED
	worker := newTestWorker(t, hub, false, 0)
	go worker.Run()
	defer worker.Shutdown()

	submitTask(t, hub, delivery.NewTask("relayer1", 10, []string{"node1"}, 0))

	waitFor(t, "the task to be executed", func() bool {
		return worker.GetStats().Executed == 1
	})

	stats := worker.GetStats()
	if stats.ByState["SKIPPED"] != 1 {
		t.Fatalf("stats should count 1 SKIPPED result, got %v", stats.ByState)
	}

	worker.Shutdown()
	if worker.GetState() != Shutdown {
		t.Fatalf("worker state should be Shutdown, not %s", worker.GetState())
	}
}

func TestWorkerIgnoresUnknownTasks(t *testing.T) {
	hub := queue.NewInmemHub()

	worker := newTestWorker(t, hub, false, 0)
	go worker.Run()
	defer worker.Shutdown()

	err := hub.Broker("producer").Submit("node1", queue.Task{Name: "bogus"})
	if err != nil {
		t.Fatal(err)
	}

	submitTask(t, hub, delivery.NewTask("relayer1", 10, []string{"node1"}, 0))

	waitFor(t, "the valid task to be executed", func() bool {
		return worker.GetStats().Executed == 1
	})
}

func TestWorkerSuspendsAfterFailures(t *testing.T) {
	hub := queue.NewInmemHub()

	worker := newTestWorker(t, hub, true, 2)
	go worker.Run()
	defer worker.Shutdown()

	// a task with no node list is rejected with a FAILED result
	for i := 0; i < 2; i++ {
		submitTask(t, hub, &delivery.Task{
			PeerID:        "relayer1",
			ExpectedCount: 10,
			FirstAttempt:  time.Now().UnixMilli(),
			Attempts:      1,
		})
	}

	waitFor(t, "the worker to suspend itself", func() bool {
		return worker.GetState() == Suspended
	})

	worker.Resume()
	if worker.GetState() != Running {
		t.Fatalf("worker state should be Running after Resume, not %s", worker.GetState())
	}
}

func TestSeeder(t *testing.T) {
	logger := common.NewTestEntry(t)
	hub := queue.NewInmemHub()

	node1 := hub.Broker("node1")
	node2 := hub.Broker("node2")

	// stakes far exceed the bucket domains; quotas only come out positive
	// because the bucket inputs are network-level ratios, not raw stakes
	model := reward.NewModel(reward.Config{
		Proportion:       1,
		TotalTokenSupply: 10000,
		NetworkCapacity:  10,
		Buckets: []reward.Bucket{
			{Name: reward.BucketEconomicSecurity, Flatness: 1, Skewness: 1, Upperbound: 1},
			{Name: reward.BucketNetworkCapacity, Flatness: 1, Skewness: 1, Upperbound: 1},
		},
	}, logger)

	seeder := NewSeeder(
		hub.Broker("seeder"),
		model,
		[]string{"node1", "node2"},
		0.1,
		365*24*time.Hour,
		logger,
	)

	peerSet := peers.NewPeerSet([]*peers.Peer{
		{ID: "relayer1", Address: "0x0001", Stake: 1000},
		{ID: "relayer2", Address: "0x0002", Stake: 2000},
		{ID: "relayer3", Address: "0x0003", Stake: 3000, Excluded: true},
	})

	submitted, err := seeder.Seed(peerSet)
	if err != nil {
		t.Fatal(err)
	}
	if submitted != 2 {
		t.Fatalf("2 tasks should be submitted, not %d", submitted)
	}

	// eligible peers are spread round-robin across the sending nodes
	for i, broker := range []queue.Broker{node1, node2} {
		select {
		case envelope := <-broker.Consumer():
			task := new(delivery.Task)
			if err := task.Unmarshal(envelope.Payload); err != nil {
				t.Fatal(err)
			}
			if task.ExpectedCount <= 0 {
				t.Fatalf("task %d should carry a positive count, not %d", i, task.ExpectedCount)
			}
			if task.NodeIndex != i {
				t.Fatalf("task %d should start at node index %d, not %d", i, i, task.NodeIndex)
			}
		case <-time.After(time.Second):
			t.Fatalf("no task was routed to node%d", i+1)
		}
	}
}

func TestSeederNoNodes(t *testing.T) {
	logger := common.NewTestEntry(t)
	hub := queue.NewInmemHub()

	model := reward.NewModel(reward.Config{}, logger)

	seeder := NewSeeder(hub.Broker("seeder"), model, nil, 0.1, time.Hour, logger)

	if _, err := seeder.Seed(peers.NewPeerSet(nil)); err == nil {
		t.Fatal("seeding without sending nodes should fail")
	}
}
