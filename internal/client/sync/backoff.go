package sync

import (
	"math"
	"time"
)

// backoffDelay возвращает задержку перед следующей попыткой:
// min(base*2^(attempts-1), max) с разбросом ±jitter, но не больше max.
// r должен быть в диапазоне [0, 1).
func backoffDelay(cfg Config, attempts int, r float64) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	d := float64(cfg.BaseDelay) * math.Pow(2, float64(attempts-1))
	if limit := float64(cfg.MaxDelay); cfg.MaxDelay > 0 && d > limit {
		d = limit
	}

	if cfg.Jitter > 0 {
		d *= 1 + cfg.Jitter*(2*r-1)
	}
	if cfg.MaxDelay > 0 && d > float64(cfg.MaxDelay) {
		d = float64(cfg.MaxDelay)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}
