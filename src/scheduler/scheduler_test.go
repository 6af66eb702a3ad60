package scheduler

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/covertnetworks/relaypulse/src/common"
	"github.com/covertnetworks/relaypulse/src/message"
	"github.com/covertnetworks/relaypulse/src/nodeapi"
	"github.com/covertnetworks/relaypulse/src/registry"
)

// fakeSender records every payload written to it, optionally failing all
// sends after a threshold.
type fakeSender struct {
	sync.Mutex
	payloads  [][]byte
	failAfter int
}

func (f *fakeSender) Send(payload []byte) (int, error) {
	f.Lock()
	defer f.Unlock()

	if f.failAfter > 0 && len(f.payloads) >= f.failAfter {
		return 0, errors.New("socket closed")
	}

	buf := make([]byte, len(payload))
	copy(buf, payload)
	f.payloads = append(f.payloads, buf)

	return len(payload), nil
}

func (f *fakeSender) PayloadSize() int {
	return 476
}

func (f *fakeSender) sent() [][]byte {
	f.Lock()
	defer f.Unlock()
	return f.payloads
}

func newTestScheduler(t *testing.T, api nodeapi.Client) *Scheduler {
	return New(
		api,
		registry.NewInmemStore(),
		4,
		800,
		time.Millisecond,
		10*time.Millisecond,
		common.NewTestEntry(t),
	)
}

func TestCreateBatches(t *testing.T) {
	tests := []struct {
		total     int
		batchSize int
		expected  []int
	}{
		{10, 4, []int{4, 4, 2}},
		{8, 4, []int{4, 4}},
		{3, 5, []int{3}},
		{1, 1, []int{1}},
		{0, 5, nil},
		{-7, 5, nil},
		{5, 0, nil},
	}

	for _, tt := range tests {
		batches := CreateBatches(tt.total, tt.batchSize)

		if len(batches) != len(tt.expected) {
			t.Fatalf("CreateBatches(%d, %d) should have %d batches, not %d",
				tt.total, tt.batchSize, len(tt.expected), len(batches))
		}

		sum := 0
		for i, b := range batches {
			if b != tt.expected[i] {
				t.Fatalf("CreateBatches(%d, %d)[%d] should be %d, not %d",
					tt.total, tt.batchSize, i, tt.expected[i], b)
			}
			sum += b
		}

		if tt.total > 0 && tt.batchSize > 0 && sum != tt.total {
			t.Fatalf("batches of %d should sum to it, not to %d", tt.total, sum)
		}
	}
}

func TestSendMessagesInBatches(t *testing.T) {
	api := nodeapi.NewInmemClient("node1")
	sched := newTestScheduler(t, api)
	sock := &fakeSender{}

	// the first relayer registered by an empty store gets tag 800+1
	for i := 0; i < 7; i++ {
		api.PushMessage(801, []byte("relayer1//1000-1/1"))
	}

	relayed, issued, err := sched.SendMessagesInBatches(sock, "sender1", "relayer1", 10)
	if err != nil {
		t.Fatal(err)
	}

	if issued != 10 {
		t.Fatalf("should have issued 10 probes, not %d", issued)
	}
	if relayed != 7 {
		t.Fatalf("should have counted 7 relayed probes, not %d", relayed)
	}

	if len(sock.sent()) != 10 {
		t.Fatalf("socket should have seen 10 payloads, not %d", len(sock.sent()))
	}
}

func TestSendMessagesInBatchesFraming(t *testing.T) {
	api := nodeapi.NewInmemClient("node1")
	sched := newTestScheduler(t, api)
	sock := &fakeSender{}

	if _, _, err := sched.SendMessagesInBatches(sock, "sender1", "relayer1", 6); err != nil {
		t.Fatal(err)
	}

	// every probe carries its global sequence number over the full expected
	// count, across batch boundaries
	seen := make(map[int]int)
	for _, payload := range sock.sent() {
		if len(payload) != sock.PayloadSize() {
			t.Fatalf("payload should be padded to %d bytes, not %d",
				sock.PayloadSize(), len(payload))
		}

		probe, err := message.Parse(payload)
		if err != nil {
			t.Fatal(err)
		}

		if probe.Relayer != "relayer1" {
			t.Fatalf("probe relayer should be relayer1, not %s", probe.Relayer)
		}
		if probe.Total != 6 {
			t.Fatalf("probe total should be the expected count 6, not %d", probe.Total)
		}

		seen[probe.Index]++
	}

	for i := 1; i <= 6; i++ {
		if seen[i] != 1 {
			t.Fatalf("sequence number %d should appear exactly once, got %v", i, seen)
		}
	}
}

func TestSendMessagesInBatchesInterBatchGrace(t *testing.T) {
	api := nodeapi.NewInmemClient("node1")
	sched := newTestScheduler(t, api)
	sock := &fakeSender{}

	// 10 probes with a batch size of 4 make 3 batches, each followed by the
	// 10ms delivery grace period
	start := time.Now()
	if _, _, err := sched.SendMessagesInBatches(sock, "sender1", "relayer1", 10); err != nil {
		t.Fatal(err)
	}

	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("3 batches should each wait out the grace period, done in %s", elapsed)
	}
}

func TestSendMessagesInBatchesPartialIssue(t *testing.T) {
	api := nodeapi.NewInmemClient("node1")
	sched := newTestScheduler(t, api)
	sock := &fakeSender{failAfter: 5}

	// more inbox messages than successful sends
	for i := 0; i < 10; i++ {
		api.PushMessage(801, []byte("relayer1//1000-1/1"))
	}

	relayed, issued, err := sched.SendMessagesInBatches(sock, "sender1", "relayer1", 10)
	if err != nil {
		t.Fatal(err)
	}

	if issued != 5 {
		t.Fatalf("should have issued 5 probes, not %d", issued)
	}
	if relayed > issued {
		t.Fatalf("relayed count %d should never exceed issued count %d", relayed, issued)
	}
}

func TestSendMessagesInBatchesUnreachableInbox(t *testing.T) {
	api := nodeapi.NewInmemClient("node1")
	sched := newTestScheduler(t, api)
	sock := &fakeSender{}

	api.SetUnreachable(true)

	relayed, issued, err := sched.SendMessagesInBatches(sock, "sender1", "relayer1", 4)
	if err != nil {
		t.Fatal(err)
	}

	if issued != 4 {
		t.Fatalf("should have issued 4 probes, not %d", issued)
	}
	if relayed != 0 {
		t.Fatalf("an unreachable inbox should count 0 relayed probes, not %d", relayed)
	}
}
