package metrics

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Recorder receives the observability signals produced by the session
// transport: sent-packet counts, relayed-packet counts, and round-trip time
// samples, each labeled by (sender, relayer). The actual emission backend
// (Prometheus, logs, ...) lives behind this interface.
type Recorder interface {
	IncSent(sender, relayer string, packets int)
	IncRelayed(sender, relayer string, packets int)
	ObserveRTT(sender, relayer string, seconds float64)
}

// PairStats aggregates the signals recorded for one (sender, relayer) pair.
type PairStats struct {
	SentPackets    int
	RelayedPackets int
	RTTSamples     []float64
}

// InmemRecorder accumulates signals in memory. It backs the stats service and
// the test suite.
type InmemRecorder struct {
	sync.Mutex
	pairs map[string]*PairStats
}

// NewInmemRecorder ...
func NewInmemRecorder() *InmemRecorder {
	return &InmemRecorder{
		pairs: make(map[string]*PairStats),
	}
}

func (r *InmemRecorder) getOrCreate(sender, relayer string) *PairStats {
	key := sender + "-" + relayer
	stats, ok := r.pairs[key]
	if !ok {
		stats = &PairStats{}
		r.pairs[key] = stats
	}
	return stats
}

// IncSent implements the Recorder interface.
func (r *InmemRecorder) IncSent(sender, relayer string, packets int) {
	r.Lock()
	defer r.Unlock()
	r.getOrCreate(sender, relayer).SentPackets += packets
}

// IncRelayed implements the Recorder interface.
func (r *InmemRecorder) IncRelayed(sender, relayer string, packets int) {
	r.Lock()
	defer r.Unlock()
	r.getOrCreate(sender, relayer).RelayedPackets += packets
}

// ObserveRTT implements the Recorder interface.
func (r *InmemRecorder) ObserveRTT(sender, relayer string, seconds float64) {
	r.Lock()
	defer r.Unlock()
	stats := r.getOrCreate(sender, relayer)
	stats.RTTSamples = append(stats.RTTSamples, seconds)
}

// Stats returns a copy of the accumulated stats for a (sender, relayer) pair.
func (r *InmemRecorder) Stats(sender, relayer string) PairStats {
	r.Lock()
	defer r.Unlock()

	stats := r.getOrCreate(sender, relayer)

	out := PairStats{
		SentPackets:    stats.SentPackets,
		RelayedPackets: stats.RelayedPackets,
		RTTSamples:     make([]float64, len(stats.RTTSamples)),
	}
	copy(out.RTTSamples, stats.RTTSamples)

	return out
}

// Snapshot returns a copy of all accumulated pair stats, keyed by
// "<sender>-<relayer>".
func (r *InmemRecorder) Snapshot() map[string]PairStats {
	r.Lock()
	defer r.Unlock()

	out := make(map[string]PairStats, len(r.pairs))
	for key, stats := range r.pairs {
		copied := PairStats{
			SentPackets:    stats.SentPackets,
			RelayedPackets: stats.RelayedPackets,
			RTTSamples:     make([]float64, len(stats.RTTSamples)),
		}
		copy(copied.RTTSamples, stats.RTTSamples)
		out[key] = copied
	}

	return out
}

// LogRecorder writes every signal to a logrus Entry. It is used when no
// metrics collector is wired in.
type LogRecorder struct {
	logger *logrus.Entry
}

// NewLogRecorder ...
func NewLogRecorder(logger *logrus.Entry) *LogRecorder {
	return &LogRecorder{logger: logger}
}

// IncSent implements the Recorder interface.
func (r *LogRecorder) IncSent(sender, relayer string, packets int) {
	r.logger.WithFields(logrus.Fields{
		"sender":  sender,
		"relayer": relayer,
		"packets": packets,
	}).Debug("Sent packets")
}

// IncRelayed implements the Recorder interface.
func (r *LogRecorder) IncRelayed(sender, relayer string, packets int) {
	r.logger.WithFields(logrus.Fields{
		"sender":  sender,
		"relayer": relayer,
		"packets": packets,
	}).Debug("Relayed packets")
}

// ObserveRTT implements the Recorder interface.
func (r *LogRecorder) ObserveRTT(sender, relayer string, seconds float64) {
	r.logger.WithFields(logrus.Fields{
		"sender":  sender,
		"relayer": relayer,
		"rtt":     seconds,
	}).Debug("Message RTT")
}
