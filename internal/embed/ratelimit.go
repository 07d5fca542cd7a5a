package embed

import (
	"os"
	"strconv"

	"golang.org/x/time/rate"
)

// newLimiter builds the request limiter; POSTSEQ_EMBED_RPS and POSTSEQ_EMBED_BURST override
// the configured values. A non-positive rate means unlimited.
func newLimiter(rps float64, burst int) *rate.Limiter {
	if v := os.Getenv("POSTSEQ_EMBED_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			rps = f
		}
	}
	if v := os.Getenv("POSTSEQ_EMBED_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			burst = n
		}
	}
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
