package auth

import "time"

const (
	defaultMaxAttempts  = 5
	defaultLockDuration = 15 * time.Minute
)

// LockoutState classifies an account's brute-force tracking fields at a
// given instant.
type LockoutState int

const (
	// LockoutOpen: below the threshold, no active lock.
	LockoutOpen LockoutState = iota
	// LockoutLocked: lockedUntil is in the future; all attempts refused.
	LockoutLocked
	// LockoutExpiring: a lock timestamp exists but has passed; the next
	// attempt is evaluated as if open.
	LockoutExpiring
)

// LockoutPolicy is the pure state machine behind brute-force lockout. It
// transforms (failedAttempts, lockedUntil, now, outcome) into the next
// counter and lock values, with no store, token, or hashing dependency.
type LockoutPolicy struct {
	MaxAttempts  int
	LockDuration time.Duration
}

func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{MaxAttempts: defaultMaxAttempts, LockDuration: defaultLockDuration}
}

// State classifies the tracking fields at the given instant.
func (p LockoutPolicy) State(lockedUntil *time.Time, now time.Time) LockoutState {
	switch {
	case lockedUntil == nil:
		return LockoutOpen
	case now.Before(*lockedUntil):
		return LockoutLocked
	default:
		return LockoutExpiring
	}
}

// OnFailure applies one failed verification attempt.
//
// While locked, nothing mutates: the counter is not incremented and the
// lock is not extended. An expired lock is cleared first, resetting the
// baseline to zero before this failure counts as one. Otherwise the counter
// increments, and reaching the threshold arms a lock of LockDuration.
func (p LockoutPolicy) OnFailure(failedAttempts int, lockedUntil *time.Time, now time.Time) (int, *time.Time) {
	switch p.State(lockedUntil, now) {
	case LockoutLocked:
		return failedAttempts, lockedUntil
	case LockoutExpiring:
		failedAttempts = 0
	}

	failedAttempts++
	if failedAttempts >= p.MaxAttempts {
		until := now.Add(p.LockDuration)
		return failedAttempts, &until
	}

	return failedAttempts, nil
}

// OnSuccess applies one successful verification. The caller must have
// refused the attempt already if the account is locked; success from any
// non-locked state clears both fields.
func (p LockoutPolicy) OnSuccess() (int, *time.Time) {
	return 0, nil
}
