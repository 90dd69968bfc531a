//go:build !notflite

package classifier

import (
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTFLiteWithRealModel(t *testing.T) {
	path := os.Getenv("VOICETRIGGER_TEST_MODEL")
	if path == "" {
		t.Skip("VOICETRIGGER_TEST_MODEL not set")
	}

	c, err := NewTFLite(TFLiteOptions{ModelPath: path, Threads: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	info := c.Info()
	assert.Equal(t, DefaultInputSize, c.InputSize())
	assert.Contains(t, []string{"INT8", "FLOAT32"}, info.Input.Type)

	conf, err := c.Infer(make([]float32, c.InputSize()))
	require.NoError(t, err)
	assert.False(t, math.IsNaN(float64(conf)))
	assert.GreaterOrEqual(t, conf, float32(0))
	assert.LessOrEqual(t, conf, float32(1))
}
