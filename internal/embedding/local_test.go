package embedding

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalVectorDeterministic(t *testing.T) {
	a := LocalVector("hello world", 8)
	b := LocalVector("hello world", 8)
	c := LocalVector("hello worlds", 8)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 8)
}

func TestLocalVectorMapping(t *testing.T) {
	sum := sha256.Sum256([]byte("abc"))
	vec := LocalVector("abc", 4)
	for i := 0; i < 4; i++ {
		assert.InDelta(t, float64(sum[i])/255*2-1, vec[i], 1e-6)
	}
}

func TestLocalVectorRange(t *testing.T) {
	vec := LocalVector("range check", 100)
	require.Len(t, vec, 100)
	for _, v := range vec {
		assert.GreaterOrEqual(t, v, float32(-1))
		assert.LessOrEqual(t, v, float32(1))
	}

	// The first 32 values do not depend on the requested dimension
	assert.Equal(t, LocalVector("range check", 32), vec[:32])
	// and the digest repeats past 32
	assert.Equal(t, vec[:32], vec[32:64])
	assert.Equal(t, vec[:4], vec[96:100])
}

func TestLocalVectorZeroDim(t *testing.T) {
	assert.Nil(t, LocalVector("x", 0))
}

func TestLocalProviderBatch(t *testing.T) {
	p := NewLocalProvider(8)
	vecs, err := p.EmbedBatch(context.Background(), []string{"a", "b", ""})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, LocalVector("b", 8), vecs[1])
	assert.Equal(t, LocalName, p.Name())
}
