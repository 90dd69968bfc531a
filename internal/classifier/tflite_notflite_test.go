//go:build notflite

package classifier

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/voicetrigger/internal/errors"
)

func TestNewTFLiteUnavailable(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "model.tflite")
	require.NoError(t, os.WriteFile(path, []byte("not a model"), 0o600))

	c, err := NewTFLite(TFLiteOptions{ModelPath: path})
	require.Error(t, err)
	assert.Nil(t, c)
	assert.True(t, errors.IsCategory(err, errors.CategoryModelInit))
}
