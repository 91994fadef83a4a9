// Package signaler wires the coordination components into a runnable
// application: room registry, connection tracker, signaling relay, the
// HTTP/websocket surface and the background sweeps.
package signaler

import (
	"context"

	"github.com/holomesh/holomesh/pkg/clock"
	"github.com/holomesh/holomesh/pkg/config"
	"github.com/holomesh/holomesh/pkg/logger"
	"github.com/holomesh/holomesh/pkg/monitoring"
	"github.com/holomesh/holomesh/pkg/network/httpx"
	"github.com/holomesh/holomesh/pkg/registry"
	"github.com/holomesh/holomesh/pkg/relay"
	"github.com/holomesh/holomesh/pkg/service"
	"github.com/holomesh/holomesh/pkg/tracker"
)

type Signaler struct {
	conf     config.SignalerConfig
	hub      *relay.Hub
	services service.Group
	log      *logger.Logger
}

func New(conf config.SignalerConfig, log *logger.Logger) *Signaler {
	clk := clock.Wall()
	rooms := registry.New(conf.Rooms, clk, log)
	conns := tracker.New(conf.Connections, rooms, clk, log)
	router := relay.New(conf.Queue, rooms, conns, clk, log)
	hub := relay.NewHub(conf.Signaler, router, log)

	s := &Signaler{conf: conf, hub: hub, log: log}

	httpServer, err := newHTTPServer(conf.Signaler, hub, router, rooms, log)
	if err != nil {
		log.Fatal().Err(err).Msg("http init fail")
	}

	s.services.Add(
		httpServer,
		NewSweeper("room", conf.Rooms.SweepInterval, func() { rooms.Sweep() }, log),
		NewSweeper("connection", conf.Connections.SweepInterval, func() { conns.Sweep() }, log),
		NewSweeper("queue", conf.Queue.PurgeInterval, func() { router.PurgeQueues() }, log),
	)
	s.services.AddIf(conf.Signaler.Monitoring.IsEnabled(), monitoring.New(conf.Signaler.Monitoring, "sig", log))
	return s
}

func (s *Signaler) Start() { s.services.Start() }

func (s *Signaler) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.services.Shutdown(ctx)
}

func newHTTPServer(conf config.Signaler, hub *relay.Hub, router *relay.Relay, rooms *registry.Registry, log *logger.Logger) (*httpx.Server, error) {
	var opts []httpx.Option
	opts = append(opts, httpx.WithLogger(log))
	if conf.Server.Https {
		opts = append(opts, httpx.HttpsOpts(conf.Server.HttpsCert, conf.Server.HttpsKey, conf.Server.Domain))
	}
	return httpx.NewServer(conf.Server.Address, func(serv *httpx.Server) httpx.Handler {
		mux := serv.Mux()
		mux.HandleFunc("/connect", hub.Handler())
		mux.Handle("/api/rooms", roomsHandler(rooms))
		mux.Handle("/api/stats", statsHandler(router))
		mux.HandleW("/echo", func(w httpx.ResponseWriter) { _, _ = w.Write([]byte("echo")) })
		return mux
	}, opts...)
}
