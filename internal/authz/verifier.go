package authz

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"shopgate/internal/platform/metrics"
	id "shopgate/pkg/domain"
	dErrors "shopgate/pkg/domain-errors"
)

// Verifier runs the authoritative admin check with a hard deadline.
// Concurrent checks for the same user collapse into one store query via
// singleflight; every holder waiting on the same user shares one flight.
type Verifier struct {
	store   AdminStore
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
	group   singleflight.Group
}

func NewVerifier(store AdminStore, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *Verifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Verifier{
		store:   store,
		timeout: timeout,
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer("shopgate/authz"),
	}
}

// Verify answers whether the user is an admin according to the
// authoritative record. Timeouts come back as CodeTimeout and transport
// failures as CodeUnavailable, both retryable; the caller decides what the
// failure means for cached state.
func (v *Verifier) Verify(ctx context.Context, userID id.UserID) (bool, error) {
	ctx, span := v.tracer.Start(ctx, "authz.Verify",
		trace.WithAttributes(attribute.String("user_id", userID.String())))
	defer span.End()

	start := time.Now()
	resultCh := v.group.DoChan(userID.String(), func() (any, error) {
		checkCtx, cancel := context.WithTimeout(context.Background(), v.timeout)
		defer cancel()
		return v.store.IsAdmin(checkCtx, userID)
	})

	var isAdmin bool
	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case res := <-resultCh:
		if res.Err != nil {
			err = res.Err
		} else {
			isAdmin = res.Val.(bool)
		}
	}
	v.metrics.AdminCheckSeconds.Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			v.metrics.AdminCheckOutcome("timeout")
			return false, dErrors.Wrap(err, dErrors.CodeTimeout, "admin verification timed out")
		}
		v.metrics.AdminCheckOutcome("error")
		return false, dErrors.Wrap(err, dErrors.CodeUnavailable, "admin verification failed")
	}

	if isAdmin {
		v.metrics.AdminCheckOutcome("confirmed")
	} else {
		v.metrics.AdminCheckOutcome("denied")
	}
	return isAdmin, nil
}
