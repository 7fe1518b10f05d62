package resilience

import (
	"context"
	"errors"
	"net/http"

	"github.com/lexiqai/siliconflow-tts/internal/observability"
	"github.com/lexiqai/siliconflow-tts/internal/tts"
)

// BreakerSynthesizer guards a tts.Synthesizer with a CircuitBreaker.
// Only upstream trouble counts: transport errors, 5xx and 429 replies.
// Configuration errors, caller cancellation and other 4xx replies, which
// follow from one caller's key or parameters, pass through untouched.
type BreakerSynthesizer struct {
	next    tts.Synthesizer
	breaker *CircuitBreaker
}

// NewBreakerSynthesizer wraps next. Breaker state changes are exported as metrics.
func NewBreakerSynthesizer(next tts.Synthesizer, breaker *CircuitBreaker) *BreakerSynthesizer {
	breaker.OnStateChange(func(name string, _, to CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(to))
	})
	observability.UpdateCircuitBreakerState(breaker.Name(), int(breaker.GetState()))

	return &BreakerSynthesizer{
		next:    next,
		breaker: breaker,
	}
}

var _ tts.Synthesizer = (*BreakerSynthesizer)(nil)

// Synthesize forwards to the wrapped synthesizer unless the circuit is open.
func (s *BreakerSynthesizer) Synthesize(ctx context.Context, text, lang string, opts tts.Options) ([]byte, error) {
	var audio []byte
	err := s.breaker.Call(func() error {
		var err error
		audio, err = s.next.Synthesize(ctx, text, lang, opts)
		return err
	}, s.isUpstreamFailure)
	if err != nil {
		return nil, err
	}
	return audio, nil
}

// State returns the breaker state, for readiness reporting
func (s *BreakerSynthesizer) State() CircuitState {
	return s.breaker.GetState()
}

func (s *BreakerSynthesizer) isUpstreamFailure(err error) bool {
	if errors.Is(err, tts.ErrConfiguration) ||
		errors.Is(err, context.Canceled) {
		return false
	}

	var reqErr *tts.RequestError
	if errors.As(err, &reqErr) && reqErr.StatusCode != 0 &&
		reqErr.StatusCode < http.StatusInternalServerError &&
		reqErr.StatusCode != http.StatusTooManyRequests {
		return false
	}

	observability.IncrementCircuitBreakerFailures(s.breaker.Name())
	return true
}
