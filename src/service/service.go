package service

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/covertnetworks/relaypulse/src/metrics"
	"github.com/covertnetworks/relaypulse/src/peers"
	"github.com/covertnetworks/relaypulse/src/worker"
	"github.com/sirupsen/logrus"
)

// Service exposes the worker's delivery counters, traffic stats and peer set
// over HTTP.
type Service struct {
	sync.Mutex

	bindAddress string
	worker      *worker.Worker
	recorder    *metrics.InmemRecorder
	peerSet     *peers.PeerSet
	logger      *logrus.Entry
}

// NewService ...
func NewService(
	bindAddress string,
	w *worker.Worker,
	recorder *metrics.InmemRecorder,
	peerSet *peers.PeerSet,
	logger *logrus.Entry,
) *Service {

	service := Service{
		bindAddress: bindAddress,
		worker:      w,
		recorder:    recorder,
		peerSet:     peerSet,
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

// registerHandlers registers the API handlers with the DefaultServerMux of
// the http package. It is possible that another server in the same process is
// simultaneously using the DefaultServerMux. In which case, the handlers will
// be accessible from both servers.
func (s *Service) registerHandlers() {
	s.logger.Debug("Registering API handlers")
	http.HandleFunc("/stats", s.makeHandler(s.GetStats))
	http.HandleFunc("/traffic", s.makeHandler(s.GetTraffic))
	http.HandleFunc("/peers", s.makeHandler(s.GetPeers))
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Serve calls ListenAndServe. This is a blocking call. It is not necessary to
// call Serve when another server has already been started with the
// DefaultServerMux and the same address:port combination.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving stats API")

	// Use the DefaultServerMux
	err := http.ListenAndServe(s.bindAddress, nil)
	if err != nil {
		s.logger.Error(err)
	}
}

// GetStats returns the worker's delivery counters.
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := worker.Stats{}
	if s.worker != nil {
		stats = s.worker.GetStats()
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(stats)
}

// GetTraffic returns the per-(sender, relayer) traffic stats.
func (s *Service) GetTraffic(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	snapshot := map[string]metrics.PairStats{}
	if s.recorder != nil {
		snapshot = s.recorder.Snapshot()
	}

	json.NewEncoder(w).Encode(snapshot)
}

// GetPeers returns the configured peer set.
func (s *Service) GetPeers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	encoder := json.NewEncoder(w)

	if s.peerSet == nil {
		encoder.Encode([]*peers.Peer{})
		return
	}

	encoder.Encode(s.peerSet.Peers)
}
