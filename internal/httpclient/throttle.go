package httpclient

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ZebulonRouseFrantzich/fetchrun/internal/config"
	"golang.org/x/time/rate"
)

// throttle is an http.RoundTripper that waits on a token bucket before
// every outbound request.
type throttle struct {
	limiter *rate.Limiter
	next    http.RoundTripper
	logger  config.Logger
}

func newThrottle(rps, burst int, logger config.Logger, next http.RoundTripper) http.RoundTripper {
	if burst <= 0 {
		burst = 1
	}
	return &throttle{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		next:    next,
		logger:  logger,
	}
}

func (t *throttle) RoundTrip(r *http.Request) (*http.Response, error) {
	ctx := r.Context()

	if t.limiter.Tokens() < 1 {
		start := time.Now()
		defer func() {
			t.logger.Debug("throttle wait complete", "waited", time.Since(start).Round(time.Millisecond), "path", r.URL.Path)
		}()
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("throttle wait: %w", err)
	}

	return t.next.RoundTrip(r)
}
