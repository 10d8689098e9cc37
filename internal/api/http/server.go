package http

import (
	"context"
	"errors"
	"net"
	"net/http"

	"tokentable/internal/api/http/handlers"
	"tokentable/internal/api/http/mw"
	"tokentable/internal/config"
	"tokentable/internal/logger"
	"tokentable/internal/metrics"
	"tokentable/internal/service"
)

type ServerDeps struct {
	Logger  logger.Logger
	Cfg     *config.Config
	Table   *service.TableService
	Metrics *metrics.Metrics
}

type Server struct {
	log logger.Logger
	srv *http.Server

	// cancelled on Shutdown so open event streams end and connections go idle
	cancelBase context.CancelFunc
}

func NewServer(d *ServerDeps) (*Server, error) {
	if d == nil || d.Cfg == nil || d.Table == nil {
		return nil, errors.New("http server requires config and table service")
	}
	log := d.Logger
	if log == nil {
		log = logger.Nop()
	}
	m := d.Metrics
	if m == nil {
		m = metrics.New()
	}
	httpCfg := d.Cfg.API.HTTP

	h := handlers.NewHandler(log, d.Table, m, handlers.StreamConfig{
		Heartbeat: d.Cfg.API.Stream.Heartbeat,
		Buffer:    d.Cfg.API.Stream.Buffer,
	})

	var (
		metricsHandler http.Handler
		gzipMW         *mw.GzipMiddleware
		corsMW         *mw.CORSMiddleware
	)
	if d.Cfg.Metrics.Enabled {
		metricsHandler = m.Handler()
	}
	if httpCfg.Gzip.Enabled {
		gzipMW = mw.NewGzip(httpCfg.Gzip.Level, log)
	}
	if httpCfg.CORS.Enabled {
		corsMW = mw.NewCORS(&httpCfg.CORS)
	}

	router := BuildRouter(h, metricsHandler, mw.NewLogging(log), gzipMW, corsMW)

	baseCtx, cancelBase := context.WithCancel(context.Background())
	return &Server{
		log: log,
		srv: &http.Server{
			Addr:         httpCfg.Addr,
			Handler:      router,
			ReadTimeout:  httpCfg.ReadTimeout,
			WriteTimeout: httpCfg.WriteTimeout,
			IdleTimeout:  httpCfg.IdleTimeout,
			BaseContext:  func(net.Listener) context.Context { return baseCtx },
		},
		cancelBase: cancelBase,
	}, nil
}

func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start blocks until the server stops; http.ErrServerClosed means a clean shutdown
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

func (s *Server) Serve(ln net.Listener) error {
	s.log.Infof("HTTP server listening on %s", ln.Addr().String())
	return s.srv.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.cancelBase()
	return s.srv.Shutdown(ctx)
}
