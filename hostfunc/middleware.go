package hostfunc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/caffeineduck/runjs/bridge"
	"github.com/caffeineduck/runjs/value"
	"go.uber.org/zap"
)

// RecoverMiddleware converts a panicking operation into an internal error so a
// faulty capability cannot take down the host.
func RecoverMiddleware() Middleware {
	return func(e Entry, next bridge.Operation) bridge.Operation {
		return func(ctx context.Context) (v value.Value, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%s panicked: %v", e.QualifiedName(), r)
				}
			}()
			return next(ctx)
		}
	}
}

// LoggingMiddleware records every capability operation. Failures are logged
// at warn level with their kind and, for HttpError, the status code.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(e Entry, next bridge.Operation) bridge.Operation {
		return func(ctx context.Context) (value.Value, error) {
			start := time.Now()
			v, err := next(ctx)
			fields := []zap.Field{
				zap.String("capability", e.QualifiedName()),
				zap.String("kind", string(e.Kind)),
				zap.Duration("duration", time.Since(start)),
			}
			if err == nil {
				logger.Debug("capability completed", fields...)
				return v, nil
			}

			var ce *CapabilityError
			if errors.As(err, &ce) {
				fields = append(fields, zap.String("error_kind", string(ce.Kind)))
				if ce.Status != 0 {
					fields = append(fields, zap.Int("status", ce.Status))
				}
			}
			fields = append(fields, zap.Error(err))
			logger.Warn("capability failed", fields...)
			return v, err
		}
	}
}
