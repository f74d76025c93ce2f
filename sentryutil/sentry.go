// Package sentryutil wraps Sentry initialization and error capture.
package sentryutil

import (
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
)

func Init(dsn string, debug bool) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Debug:            debug,
		TracesSampleRate: 0.2,
		EnableTracing:    dsn != "",
	})
	if err != nil {
		log.Warn().Err(err).Msg("sentry init failed (non-blocking)")
	}
	if dsn == "" {
		log.Info().Msg("SENTRY_DSN empty, error tracking disabled")
	}
}

func Flush() { sentry.Flush(2 * time.Second) }

func CaptureError(err error, tags map[string]string) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}
