package wamp

import (
	"context"
	"net/http"

	"github.com/gammazero/nexus/v3/router"
	"github.com/gammazero/nexus/v3/wamp"
	"github.com/sirupsen/logrus"
)

// Server embeds a WAMP router through which workers exchange distribution
// tasks and feedback records. It is the broker side of the queue system.
type Server struct {
	address    string
	router     router.Router
	httpServer *http.Server
	logger     *logrus.Entry
}

// NewServer instantiates a new Server which can be run at a specified
// address.
func NewServer(address string, realm string, logger *logrus.Entry) (*Server, error) {
	routerConfig := &router.Config{
		RealmConfigs: []*router.RealmConfig{
			{
				URI:           wamp.URI(realm),
				AnonymousAuth: true,
			},
		},
	}

	nxr, err := router.NewRouter(routerConfig, logger)
	if err != nil {
		return nil, err
	}

	wss := router.NewWebsocketServer(nxr)

	httpServer := &http.Server{
		Handler: wss,
		Addr:    address,
	}

	res := &Server{
		address:    address,
		router:     nxr,
		httpServer: httpServer,
		logger:     logger,
	}

	return res, nil
}

// Run starts the WAMP websocket server. This is a blocking call.
func (s *Server) Run() error {
	s.logger.WithField("address", s.address).Debug("Serving task queues")

	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		s.logger.WithError(err).Error("Run")
	}
	return err
}

// Shutdown stops the websocket server and the wamp router.
func (s *Server) Shutdown() {
	defer s.router.Close()

	if err := s.httpServer.Shutdown(context.Background()); err != nil {
		s.logger.WithError(err).Error("Shutdown")
	}
}
