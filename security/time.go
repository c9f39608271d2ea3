package security

import "time"

// NeverExpires disables expiry when used as a timeout.
const NeverExpires time.Duration = -1

// IsExpired reports whether something last touched at updated has been idle
// for longer than timeout plus grace. A negative timeout never expires.
func IsExpired(updated time.Time, timeout, grace time.Duration, now time.Time) bool {
	if timeout < 0 {
		return false
	}
	return now.Sub(updated) > timeout+grace
}

// Remaining returns how long until updated+timeout is reached, clamped at
// zero. A negative timeout yields NeverExpires.
func Remaining(updated time.Time, timeout time.Duration, now time.Time) time.Duration {
	if timeout < 0 {
		return NeverExpires
	}
	left := updated.Add(timeout).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}
