package resilience

import "context"

// Guard combines a breaker and a retry policy around one collaborator.
// A nil breaker never opens.
type Guard struct {
	Retry   RetryPolicy
	Breaker *CircuitBreaker
}

// Do runs fn through the breaker and the retry policy.
func (g Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if !g.Breaker.Allow() {
		return ErrCircuitOpen
	}
	err := g.Retry.Do(ctx, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil {
			g.Breaker.OnError(err)
			if IsRateLimit(err) && !g.Breaker.Allow() {
				return Permanent(err)
			}
			return err
		}
		g.Breaker.OnSuccess()
		return nil
	})
	return err
}
