package httpx

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/holomesh/holomesh/pkg/logger"
	"golang.org/x/crypto/acme/autocert"
)

type Server struct {
	http.Server

	autoCert *autocert.Manager
	opts     Options
	log      *logger.Logger
}

type (
	Mux struct {
		*http.ServeMux
		prefix string
	}
	Handler        = http.Handler
	HandlerFunc    = http.HandlerFunc
	ResponseWriter = http.ResponseWriter
	Request        = http.Request
)

// NewServeMux allocates and returns a new ServeMux.
func NewServeMux(prefix string) *Mux {
	return &Mux{ServeMux: http.NewServeMux(), prefix: prefix}
}

func (m *Mux) Handle(pattern string, handler Handler) *Mux {
	m.ServeMux.Handle(m.prefix+pattern, handler)
	return m
}

func (m *Mux) HandleFunc(pattern string, handler func(ResponseWriter, *Request)) *Mux {
	m.ServeMux.HandleFunc(m.prefix+pattern, handler)
	return m
}

func (m *Mux) HandleW(pattern string, h func(ResponseWriter)) *Mux {
	m.ServeMux.HandleFunc(m.prefix+pattern, func(w ResponseWriter, _ *Request) { h(w) })
	return m
}

func NewServer(address string, handler func(*Server) Handler, options ...Option) (*Server, error) {
	opts := &Options{
		IdleTimeout:  120 * time.Second,
		ReadTimeout:  120 * time.Second,
		WriteTimeout: 120 * time.Second,
	}
	opts.override(options...)
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}

	server := &Server{
		Server: http.Server{
			Addr:         address,
			IdleTimeout:  opts.IdleTimeout,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
		},
		opts: *opts,
		log:  opts.Logger,
	}
	server.Handler = handler(server)

	if opts.Https && opts.IsAutoHttpsCert() {
		server.autoCert = &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(opts.HttpsDomain),
		}
		server.TLSConfig = &tls.Config{GetCertificate: server.autoCert.GetCertificate}
	}

	return server, nil
}

func (s *Server) Mux() *Mux { return NewServeMux("") }

func (s *Server) Run() { go s.run() }

func (s *Server) run() {
	protocol := s.GetProtocol()
	s.log.Info().Msgf("Starting %s server on %s", protocol, s.Addr)

	var err error
	if s.opts.Https {
		err = s.ListenAndServeTLS(s.opts.HttpsCert, s.opts.HttpsKey)
	} else {
		err = s.ListenAndServe()
	}
	if err == http.ErrServerClosed {
		s.log.Debug().Msgf("%s server was closed", protocol)
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msgf("%s server fail", protocol)
	}
}

func (s *Server) Shutdown(ctx context.Context) error { return s.Server.Shutdown(ctx) }

func (s *Server) GetProtocol() string {
	if s.opts.Https {
		return "https"
	}
	return "http"
}
