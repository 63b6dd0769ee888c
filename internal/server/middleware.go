package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger logs one line per request. Bodies are not logged since uploads can be large.
func Logger(ctx *gin.Context) {
	start := time.Now()
	path := ctx.Request.URL.Path

	ctx.Next()

	status := ctx.Writer.Status()
	var event *zerolog.Event
	switch {
	case status >= 500:
		event = log.Error()
	case status >= 400:
		event = log.Warn()
	default:
		event = log.Info()
	}
	if len(ctx.Errors) > 0 {
		event = event.Str("error", ctx.Errors.String())
	}
	event.
		Str("method", ctx.Request.Method).
		Str("path", path).
		Int("status", status).
		Dur("latency", time.Since(start)).
		Str("ip", ctx.ClientIP()).
		Msg("Request")
}
