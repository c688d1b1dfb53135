package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockoutState(t *testing.T) {
	policy := DefaultLockoutPolicy()
	now := time.Now().UTC()
	future := now.Add(5 * time.Minute)
	past := now.Add(-5 * time.Minute)

	assert.Equal(t, LockoutOpen, policy.State(nil, now))
	assert.Equal(t, LockoutLocked, policy.State(&future, now))
	assert.Equal(t, LockoutExpiring, policy.State(&past, now))
}

func TestOnFailureIncrementsBelowThreshold(t *testing.T) {
	policy := DefaultLockoutPolicy()
	now := time.Now().UTC()

	failed, lockedUntil := policy.OnFailure(0, nil, now)
	assert.Equal(t, 1, failed)
	assert.Nil(t, lockedUntil)

	failed, lockedUntil = policy.OnFailure(3, nil, now)
	assert.Equal(t, 4, failed)
	assert.Nil(t, lockedUntil)
}

func TestOnFailureArmsLockAtThreshold(t *testing.T) {
	policy := DefaultLockoutPolicy()
	now := time.Now().UTC()

	failed, lockedUntil := policy.OnFailure(4, nil, now)

	assert.Equal(t, 5, failed)
	require.NotNil(t, lockedUntil)
	assert.True(t, lockedUntil.After(now))
	assert.Equal(t, now.Add(policy.LockDuration), *lockedUntil)
}

func TestOnFailureWhileLockedMutatesNothing(t *testing.T) {
	policy := DefaultLockoutPolicy()
	now := time.Now().UTC()
	until := now.Add(10 * time.Minute)

	failed, lockedUntil := policy.OnFailure(5, &until, now)

	// No sliding window: the counter does not advance and the lock is not
	// extended while the lock is active.
	assert.Equal(t, 5, failed)
	require.NotNil(t, lockedUntil)
	assert.Equal(t, until, *lockedUntil)
}

func TestOnFailureAfterLockExpiryResetsBaseline(t *testing.T) {
	policy := DefaultLockoutPolicy()
	now := time.Now().UTC()
	expired := now.Add(-time.Second)

	failed, lockedUntil := policy.OnFailure(5, &expired, now)

	// Expiring is treated as open first: the stale counter is cleared and
	// this failure counts as the first of a new series.
	assert.Equal(t, 1, failed)
	assert.Nil(t, lockedUntil)
}

func TestOnSuccessClearsEverything(t *testing.T) {
	policy := DefaultLockoutPolicy()

	failed, lockedUntil := policy.OnSuccess()

	assert.Zero(t, failed)
	assert.Nil(t, lockedUntil)
}

func TestLockoutSequenceToLockAndBack(t *testing.T) {
	policy := LockoutPolicy{MaxAttempts: 5, LockDuration: 15 * time.Minute}
	now := time.Now().UTC()

	failed := 0
	var lockedUntil *time.Time
	for i := 1; i <= 4; i++ {
		failed, lockedUntil = policy.OnFailure(failed, lockedUntil, now)
		assert.Equal(t, i, failed)
		assert.Nil(t, lockedUntil)
	}

	// Fifth failure arms the lock.
	failed, lockedUntil = policy.OnFailure(failed, lockedUntil, now)
	assert.Equal(t, 5, failed)
	require.NotNil(t, lockedUntil)

	// A sixth failure one second later changes nothing.
	failed, lockedUntil = policy.OnFailure(failed, lockedUntil, now.Add(time.Second))
	assert.Equal(t, 5, failed)
	require.NotNil(t, lockedUntil)

	// Once the lock lapses the next attempt is evaluated as if open.
	afterExpiry := lockedUntil.Add(time.Second)
	failed, lockedUntil = policy.OnFailure(failed, lockedUntil, afterExpiry)
	assert.Equal(t, 1, failed)
	assert.Nil(t, lockedUntil)
}
