package export

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/voicetrigger/internal/session"
)

func TestClipSinkWritesOneClipPerSession(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sink := NewClipSink(dir, 16000)
	assert.Equal(t, "clip", sink.Name())

	info := session.Info{ID: "s1", Started: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)}
	require.NoError(t, sink.SessionStarted(t.Context(), info))
	require.NoError(t, sink.Audio(t.Context(), info, []int16{1, 2, 3}))
	require.NoError(t, sink.Audio(t.Context(), info, []int16{4, 5}))
	require.NoError(t, sink.SessionEnded(t.Context(), info))

	f, err := os.Open(ClipPath(dir, "s1", info.Started))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, buf.Data)
}

func TestClipSinkIgnoresUnknownSessions(t *testing.T) {
	t.Parallel()

	sink := NewClipSink(t.TempDir(), 16000)
	info := session.Info{ID: "missing"}
	require.NoError(t, sink.Audio(t.Context(), info, []int16{1}))
	require.NoError(t, sink.SessionEnded(t.Context(), info))
}

func TestClipSinkCloseFinalizesOpenClips(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sink := NewClipSink(dir, 16000)
	info := session.Info{ID: "s2", Started: time.Now()}
	require.NoError(t, sink.SessionStarted(t.Context(), info))
	require.NoError(t, sink.Audio(t.Context(), info, []int16{7, 8}))
	require.NoError(t, sink.Close())

	st, err := os.Stat(ClipPath(dir, "s2", info.Started))
	require.NoError(t, err)
	assert.Equal(t, int64(44+4), st.Size())
}

func TestClipSinkStartFailsOnBadDir(t *testing.T) {
	t.Parallel()

	parent := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(parent, []byte("x"), 0o600))

	sink := NewClipSink(parent, 16000)
	require.Error(t, sink.SessionStarted(t.Context(), session.Info{ID: "s3", Started: time.Now()}))
}
