package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axonlabs/axonfit/internal/domain/axon"
)

func TestMemory_SetGet(t *testing.T) {
	c := New()

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("k", []byte("v"), 0)
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)
}

func TestMemory_TTLExpiry(t *testing.T) {
	c := New()

	c.Set("short", []byte("x"), 10*time.Millisecond)
	_, ok := c.Get("short")
	require.True(t, ok)

	time.Sleep(25 * time.Millisecond)
	_, ok = c.Get("short")
	assert.False(t, ok, "expired entries are gone")

	c.Set("forever", []byte("y"), 0)
	time.Sleep(5 * time.Millisecond)
	_, ok = c.Get("forever")
	assert.True(t, ok, "zero TTL never expires")
}

func TestMemory_SetCopiesValue(t *testing.T) {
	c := New()

	val := []byte("original")
	c.Set("k", val, 0)
	val[0] = 'X'

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("original"), got)
}

func TestNewAuto_DefaultsToMemory(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")

	c := NewAuto()
	_, isMemory := c.(*memory)
	assert.True(t, isMemory, "without REDIS_ADDR the in-process cache is used")
}

func TestBundles_RoundTrip(t *testing.T) {
	bundles := NewBundles(New(), DefaultTTL)

	bundle := &axon.Bundle{
		ID:                 "bundle-test",
		Function:           "quadratic",
		InputDim:           1,
		Nonlinearity:       "relu",
		RInverse:           [][]float64{{1, 0}, {0, 1}},
		Rounds:             []axon.RoundRecord{},
		OutputCoefficients: []float64{1, 2},
		TrainedBy:          axon.TrainedByGreedy,
		CreatedAt:          time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, bundles.Put(bundle))

	got, ok := bundles.Get("bundle-test")
	require.True(t, ok)
	assert.Equal(t, bundle.ID, got.ID)
	assert.Equal(t, bundle.Function, got.Function)
	assert.Equal(t, bundle.RInverse, got.RInverse)
	assert.Equal(t, bundle.OutputCoefficients, got.OutputCoefficients)

	_, ok = bundles.Get("unknown")
	assert.False(t, ok)
}

func TestBundles_RejectsCorruptEntries(t *testing.T) {
	raw := New()
	bundles := NewBundles(raw, 0)

	raw.Set("bundle:broken", []byte("{not a bundle"), 0)
	_, ok := bundles.Get("broken")
	assert.False(t, ok, "undecodable entries read as missing")

	raw.Set("bundle:empty", []byte("{}"), 0)
	_, ok = bundles.Get("empty")
	assert.False(t, ok, "entries that fail validation read as missing")
}
