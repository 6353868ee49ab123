package logger

import (
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	salesboardhttp "github.com/wolfeidau/salesboard/internal/http"
)

// Setup builds the process logger and installs it as the global zerolog
// logger used by the internal packages.
func Setup(dev bool) zerolog.Logger {
	var logger zerolog.Logger
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Caller().Logger()

	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}).Level(level).With().Stack().Logger()
	}

	log.Logger = logger
	zerolog.DefaultContextLogger = &logger

	return logger
}

// RequestLogger attaches a request scoped logger to the context and logs
// each request once it completes. Health checks are logged at debug.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()

			ctx := logger.With().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("client_ip", salesboardhttp.ExtractClientIP(r)).
				Logger().WithContext(r.Context())

			rw := salesboardhttp.NewStatusRecorder(w)
			next.ServeHTTP(rw, r.WithContext(ctx))

			event := zerolog.Ctx(ctx).Info()
			switch {
			case rw.Status >= http.StatusInternalServerError:
				event = zerolog.Ctx(ctx).Error()
			case r.URL.Path == "/healthz":
				event = zerolog.Ctx(ctx).Debug()
			}

			event.
				Int("status", rw.Status).
				Dur("duration", time.Since(started)).
				Msg("http request")
		})
	}
}
