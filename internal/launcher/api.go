package launcher

import (
	"context"
	"net"
	"net/http"
	"net/http/pprof"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/paratune/paratune/pkg/transport"
)

// apiServer is the master's HTTP server. It carries the transport hub and, optionally, metrics
// and profiling.
type apiServer struct {
	log    *logrus.Entry
	server *echo.Echo
}

func newAPIServer(log *logrus.Entry, hub *transport.Hub, metrics bool) *apiServer {
	server := echo.New()
	server.HidePort = true
	server.HideBanner = true
	server.Use(middleware.Recover())
	server.Pre(middleware.RemoveTrailingSlash())

	hub.Register(server)
	if metrics {
		server.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
		server.Any("/debug/pprof/*", echo.WrapHandler(http.HandlerFunc(pprof.Index)))
		server.Any("/debug/pprof/cmdline", echo.WrapHandler(http.HandlerFunc(pprof.Cmdline)))
		server.Any("/debug/pprof/profile", echo.WrapHandler(http.HandlerFunc(pprof.Profile)))
		server.Any("/debug/pprof/symbol", echo.WrapHandler(http.HandlerFunc(pprof.Symbol)))
		server.Any("/debug/pprof/trace", echo.WrapHandler(http.HandlerFunc(pprof.Trace)))
	}

	return &apiServer{log: log, server: server}
}

// serve blocks until the server is shut down.
func (a *apiServer) serve(ln net.Listener) error {
	a.server.Listener = ln
	a.log.Infof("starting master server on [%s]", ln.Addr())
	if err := a.server.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "serving")
	}
	return nil
}

func (a *apiServer) close(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}
