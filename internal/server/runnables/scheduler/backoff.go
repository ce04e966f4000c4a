package scheduler

import "time"

// restartPolicy bounds how aggressively a crashed streaming child is
// restarted. The delay doubles per consecutive failure; a child that stays up
// past the stability window earns a clean slate.
type restartPolicy struct {
	base            time.Duration
	maxAttempts     int
	stabilityWindow time.Duration
}

const (
	defaultRestartBase     = 500 * time.Millisecond
	defaultMaxAttempts     = 5
	defaultStabilityWindow = 30 * time.Second
	maxRestartDelay        = 30 * time.Second
)

func defaultRestartPolicy() restartPolicy {
	return restartPolicy{
		base:            defaultRestartBase,
		maxAttempts:     defaultMaxAttempts,
		stabilityWindow: defaultStabilityWindow,
	}
}

// delay returns the backoff before restart attempt n (1-based).
func (p restartPolicy) delay(attempt int) time.Duration {
	d := p.base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxRestartDelay {
			return maxRestartDelay
		}
	}
	return d
}
