package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/example/kommyut/internal/apperr"
	"github.com/example/kommyut/internal/metrics"
)

const auxiliaryTimeout = 5 * time.Second

// Auxiliary is a best-effort step that enriches a committed primary result.
type Auxiliary[T any] struct {
	Name string
	Run  func(ctx context.Context, result T) error
	// Tolerate marks errors that are expected and only worth a warning.
	Tolerate func(err error) bool
}

// Commit runs primary and, only if it succeeds, every auxiliary in order.
// Auxiliary failures are logged and counted but never change the returned result:
// once primary commits, its result is the fact of record.
//
// Auxiliaries run on a context detached from the caller's cancellation, so a client
// disconnecting right after the commit does not skip them.
func Commit[T any](ctx context.Context, log *zap.SugaredLogger, primary func(ctx context.Context) (T, error), aux ...Auxiliary[T]) (T, error) {
	result, err := primary(ctx)
	if err != nil {
		return result, err
	}

	auxCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auxiliaryTimeout)
	defer cancel()

	for _, step := range aux {
		if err := step.Run(auxCtx, result); err != nil {
			metrics.AuxiliaryFailures.WithLabelValues(step.Name).Inc()
			if step.Tolerate != nil && step.Tolerate(err) {
				log.Warnw("auxiliary step skipped", "step", step.Name, "error", err)
				continue
			}
			log.Errorw("auxiliary step failed", "step", step.Name, "error", err, "retryable", apperr.KindOf(err).Retryable())
		}
	}

	return result, nil
}
