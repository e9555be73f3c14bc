package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLimiterDisabledAlwaysAllows(t *testing.T) {
	l := New(Config{Enabled: false, MaxRequestsPerMin: 1})
	for i := 0; i < 10; i++ {
		assert.True(t, l.Allow("u1"))
	}
}

func TestLimiterBlocksAfterThreshold(t *testing.T) {
	l := New(Config{Enabled: true, MaxRequestsPerMin: 3})
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("u1"), "request %d should be allowed", i)
	}
	assert.False(t, l.Allow("u1"))
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	l := New(Config{Enabled: true, MaxRequestsPerMin: 1})
	assert.True(t, l.Allow("u1"))
	assert.False(t, l.Allow("u1"))
	assert.True(t, l.Allow("u2"))
}
