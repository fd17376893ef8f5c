// Package middleware holds the broker's echo middleware: structured
// request logging and a centralised error handler.
//
// Grounded on pkg/pdp/httpapi/server/middleware/logger.go and errors.go.
package middleware

import (
	"net/http"

	logging "github.com/ipfs/go-log/v2"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// LogMiddleware logs every request through logger at a level chosen by
// the response status.
func LogMiddleware(logger *logging.ZapEventLogger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogURI:      true,
		LogStatus:   true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.Int("status", v.Status),
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.String("remote_ip", v.RemoteIP),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			switch {
			case v.Status >= http.StatusInternalServerError:
				logger.WithOptions(zap.Fields(fields...)).Error("server error")
			case v.Status >= http.StatusBadRequest:
				logger.WithOptions(zap.Fields(fields...)).Warn("client error")
			default:
				logger.WithOptions(zap.Fields(fields...)).Info("request completed")
			}
			return nil
		},
	})
}
