package audiocore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFramerValidates(t *testing.T) {
	t.Parallel()

	_, err := NewFramer(0, 4)
	require.Error(t, err)
	_, err = NewFramer(160, 0)
	require.Error(t, err)
}

func TestFramerRechunks(t *testing.T) {
	t.Parallel()

	f, err := NewFramer(4, 8)
	require.NoError(t, err)

	// 3 samples, then 6 samples: two full frames and one sample left over
	require.True(t, f.Write(EncodePCM16(nil, []int16{1, 2, 3})))
	assert.Nil(t, f.Next())
	require.True(t, f.Write(EncodePCM16(nil, []int16{4, 5, 6, 7, 8, 9})))

	assert.Equal(t, []int16{1, 2, 3, 4}, f.Next())
	assert.Equal(t, []int16{5, 6, 7, 8}, f.Next())
	assert.Nil(t, f.Next())
	assert.Equal(t, 2, f.Pending())
}

func TestFramerHandlesSplitSamples(t *testing.T) {
	t.Parallel()

	f, err := NewFramer(2, 4)
	require.NoError(t, err)

	raw := EncodePCM16(nil, []int16{-2, 300})
	require.True(t, f.Write(raw[:3]))
	assert.Nil(t, f.Next())
	require.True(t, f.Write(raw[3:]))
	assert.Equal(t, []int16{-2, 300}, f.Next())
}

func TestFramerDropsWholeChunkWhenFull(t *testing.T) {
	t.Parallel()

	f, err := NewFramer(2, 2) // 8 bytes
	require.NoError(t, err)

	require.True(t, f.Write(EncodePCM16(nil, []int16{1, 2, 3})))
	assert.False(t, f.Write(EncodePCM16(nil, []int16{4, 5})), "4 bytes do not fit in the 2 free")
	assert.Equal(t, uint64(1), f.Overruns())
	assert.Equal(t, 6, f.Pending(), "rejected chunk leaves no partial data")

	assert.Equal(t, []int16{1, 2}, f.Next())
	f.Reset()
	assert.Zero(t, f.Pending())
	assert.Nil(t, f.Next())
	assert.True(t, f.Write(nil))
}
