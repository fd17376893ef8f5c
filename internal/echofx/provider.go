// Package echofx wires the broker's echo server into the fx dependency
// graph with lifecycle-managed start/stop and a route-registrar
// aggregator.
//
// Grounded on pkg/fx/echo/provider.go, adapted to the broker's own
// config.App type.
package echofx

import (
	"context"
	"fmt"
	"net/http"

	logging "github.com/ipfs/go-log/v2"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"

	"github.com/baca2/kolejka-broker/internal/config"
	brokermiddleware "github.com/baca2/kolejka-broker/internal/httpapi/middleware"
)

var log = logging.Logger("fx/echo")

// Module provides and wires the echo server: it builds the *echo.Echo,
// registers every collected RouteRegistrar, and starts/stops the server
// alongside the fx app.
var Module = fx.Module("echo",
	fx.Provide(NewEcho),
	fx.Invoke(
		RegisterRoutes,
		StartEchoServer,
	),
)

// RouteRegistrar is implemented by any component that registers routes
// on the shared echo instance (internal/httpapi.Handler implements it).
type RouteRegistrar interface {
	RegisterRoutes(e *echo.Echo)
}

// NewEcho builds an *echo.Echo with the broker's default middleware.
func NewEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = brokermiddleware.HandleHTTPError

	e.Use(brokermiddleware.LogMiddleware(logging.Logger("httpapi/server")))
	e.Use(middleware.Recover())
	return e
}

// Server wraps echo with fx lifecycle management.
type Server struct {
	echo *echo.Echo
	addr string
}

// Address returns the server's listening address.
func (s *Server) Address() string { return s.addr }

// StartEchoServer starts the echo server as an fx lifecycle hook.
func StartEchoServer(cfg config.App, e *echo.Echo, lc fx.Lifecycle) (*Server, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &Server{echo: e, addr: addr}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infof("starting broker HTTP server on %s", addr)
			go func() {
				if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
					log.Errorf("echo server error: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down broker HTTP server")
			return e.Shutdown(ctx)
		},
	})

	return server, nil
}

// RouteParams collects all route registrars contributed to the
// "route_registrar" fx group.
type RouteParams struct {
	fx.In

	Registrars []RouteRegistrar `group:"route_registrar"`
}

// RegisterRoutes registers every collected registrar's routes.
func RegisterRoutes(e *echo.Echo, params RouteParams) {
	log.Infof("registering routes from %d registrars", len(params.Registrars))
	for _, r := range params.Registrars {
		r.RegisterRoutes(e)
	}
}
