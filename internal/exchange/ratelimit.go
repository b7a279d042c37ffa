package exchange

import (
	"context"
	"net/http"
	"time"

	"github.com/bhtaylor94/apex/internal/pkg/metrics"
	"golang.org/x/time/rate"
)

// The exchange throttles reads and writes separately, so each operation
// class gets its own token bucket. Bucket capacity equals the per-second
// rate; refill is continuous and Wait sleeps exactly as long as the next
// token takes to arrive.
type rateLimiters struct {
	read  *rate.Limiter
	write *rate.Limiter
}

func newRateLimiters(readPerSec, writePerSec float64) *rateLimiters {
	return &rateLimiters{
		read:  rate.NewLimiter(rate.Limit(readPerSec), burstFor(readPerSec)),
		write: rate.NewLimiter(rate.Limit(writePerSec), burstFor(writePerSec)),
	}
}

func burstFor(perSec float64) int {
	b := int(perSec)
	if b < 1 {
		b = 1
	}
	return b
}

// isWriteMethod classifies an HTTP method into the write operation class.
func isWriteMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	}
	return false
}

// wait blocks until a token for the method's class is available, or the
// context is canceled.
func (l *rateLimiters) wait(ctx context.Context, method string) error {
	limiter := l.read
	if isWriteMethod(method) {
		limiter = l.write
	}

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return err
	}
	metrics.RateLimitWait.Observe(time.Since(start).Seconds())
	return nil
}
