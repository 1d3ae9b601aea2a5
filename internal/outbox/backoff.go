package outbox

import (
	"math/rand"
	"time"
)

const (
	backoffBase = 30 * time.Second
	backoffCap  = 30 * time.Minute
)

// NextBackoff returns the delay before attempt number attempt (1-based): an
// exponential base capped at 30m, of which the upper half is random jitter.
func NextBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := backoffCap
	if shift := attempt - 1; shift < 16 {
		if d := backoffBase << shift; d < backoffCap {
			base = d
		}
	}
	jitter := time.Duration(rand.Int63n(int64(base/2) + 1))
	return base/2 + jitter
}
