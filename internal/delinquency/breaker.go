package delinquency

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/delinquency-bot/internal/resilience"
	"github.com/sells-group/delinquency-bot/pkg/verifier"
)

// breakerVerifier fails lookups fast once the verification API has failed
// too many times in a row. Rejected lookups surface as LookupFailed.
type breakerVerifier struct {
	next    Verifier
	breaker *resilience.Breaker
}

// WithBreaker wraps v in a circuit breaker. A nil breaker returns v as is.
func WithBreaker(v Verifier, b *resilience.Breaker) Verifier {
	if b == nil {
		return v
	}
	return &breakerVerifier{next: v, breaker: b}
}

func (bv *breakerVerifier) Verify(ctx context.Context, username, networkAddress string) (*verifier.Response, error) {
	return resilience.Call(ctx, bv.breaker, func(ctx context.Context) (*verifier.Response, error) {
		return bv.next.Verify(ctx, username, networkAddress)
	})
}

// NewVerifierBreaker builds the breaker used around the verification API.
// threshold <= 0 disables it.
func NewVerifierBreaker(threshold, resetSecs int) *resilience.Breaker {
	if threshold <= 0 {
		return nil
	}
	return resilience.NewBreaker(resilience.BreakerConfig{
		Threshold:    threshold,
		ResetTimeout: time.Duration(resetSecs) * time.Second,
		OnStateChange: func(from, to resilience.State) {
			zap.L().Warn("delinquency: verifier breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}
