package tfidf

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var corpus = []string{
	"Claim Reference: CLM-ABC-123456. Total Claimed: £1,200.00",
	"Police Reference: PNC/2024/1234567 attended the scene",
	"Reported Injuries\n- whiplash to the neck\n- bruised shoulder",
}

func TestEmbed_RequiresPrepare(t *testing.T) {
	_, err := NewEmbedder().Embed("claim")
	assert.Error(t, err)
}

func TestPrepare_EmptyCorpus(t *testing.T) {
	assert.Error(t, NewEmbedder().Prepare(nil))
	assert.Error(t, NewEmbedder().Prepare([]string{"123 456"}))
}

func TestEmbed_NormalizedAndDeterministic(t *testing.T) {
	e := NewEmbedder()
	require.NoError(t, e.Prepare(corpus))
	assert.Greater(t, e.Dimension(), 0)

	v1, err := e.Embed("What is the claim reference?")
	require.NoError(t, err)
	v2, err := e.Embed("What is the claim reference?")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Len(t, v1, e.Dimension())

	norm := 0.0
	for _, v := range v1 {
		norm += v * v
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
}

func TestEmbed_UnknownTermsYieldZeroVector(t *testing.T) {
	e := NewEmbedder()
	require.NoError(t, e.Prepare(corpus))

	v, err := e.Embed("zebra xylophone")
	require.NoError(t, err)
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func TestState_RoundTrip(t *testing.T) {
	e := NewEmbedder()
	require.NoError(t, e.Prepare(corpus))
	data, err := e.MarshalState()
	require.NoError(t, err)

	restored := NewEmbedder()
	require.NoError(t, restored.UnmarshalState(data))
	assert.Equal(t, e.Dimension(), restored.Dimension())

	want, err := e.Embed("police reference scene")
	require.NoError(t, err)
	got, err := restored.Embed("police reference scene")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestState_Errors(t *testing.T) {
	_, err := NewEmbedder().MarshalState()
	assert.Error(t, err)

	assert.Error(t, NewEmbedder().UnmarshalState([]byte("not gob")))
}
