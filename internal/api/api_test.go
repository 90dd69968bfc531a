package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/voicetrigger/internal/datastore"
	"github.com/tphakala/voicetrigger/internal/session"
	"github.com/tphakala/voicetrigger/internal/wakeword"
)

type fakeDetector struct {
	mu             sync.Mutex
	enabled        bool
	enableCtx      context.Context
	resets         int
	threshold      float32
	falsePositives uint64
}

func (f *fakeDetector) Enable(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = true
	f.enableCtx = ctx
}

func (f *fakeDetector) Disable() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = false
}

func (f *fakeDetector) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
}

func (f *fakeDetector) SetThreshold(t float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threshold = t
}

func (f *fakeDetector) RecordFalsePositive() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.falsePositives++
}

func (f *fakeDetector) Stats() wakeword.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return wakeword.Stats{
		Enabled:         f.enabled,
		Threshold:       f.threshold,
		Detections:      3,
		FalsePositives:  f.falsePositives,
		Inferences:      120,
		ValidationState: "idle",
	}
}

type fakeAudio struct{}

func (fakeAudio) AudioLevel() float32     { return 0.25 }
func (fakeAudio) IsVoiceDetected() bool   { return true }
func (fakeAudio) IsCapturing() bool       { return true }
func (fakeAudio) SamplesCaptured() uint64 { return 16000 }
func (fakeAudio) SamplesStreamed() uint64 { return 3200 }

type fakeSessions struct {
	mu      sync.Mutex
	state   session.State
	current *session.Info
	pushes  int
}

func (f *fakeSessions) State() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSessions) Current() (session.Info, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return session.Info{}, false
	}
	return *f.current, true
}

func (f *fakeSessions) SessionsStarted() uint64 { return 7 }

func (f *fakeSessions) TriggerPushToTalk() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != session.StateIdle {
		return false
	}
	f.pushes++
	f.state = session.StateStreaming
	return true
}

func openStore(t *testing.T) *datastore.SQLiteStore {
	t.Helper()
	store := &datastore.SQLiteStore{Path: ":memory:"}
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, http.NoBody)
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	t.Parallel()
	s := New(Config{})

	rec := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "healthy", body["status"])
}

func TestStatus(t *testing.T) {
	t.Parallel()

	started := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	sessions := &fakeSessions{
		state:   session.StateStreaming,
		current: &session.Info{ID: "s1", Trigger: session.TriggerWakeWord, Started: started},
	}
	s := New(Config{NodeName: "Kitchen", NodeID: "node-1"},
		WithDetector(&fakeDetector{enabled: true, threshold: 0.5}),
		WithAudio(fakeAudio{}),
		WithSessions(sessions))

	rec := do(t, s, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[StatusResponse](t, rec)

	assert.Equal(t, "Kitchen", st.NodeName)
	assert.Equal(t, "node-1", st.NodeID)
	require.NotNil(t, st.WakeWord)
	assert.True(t, st.WakeWord.Enabled)
	assert.InDelta(t, 0.5, st.WakeWord.Threshold, 1e-6)
	assert.Equal(t, uint64(3), st.WakeWord.Detections)
	assert.Equal(t, "idle", st.WakeWord.ValidationState)
	require.NotNil(t, st.Audio)
	assert.True(t, st.Audio.VoiceDetected)
	assert.InDelta(t, 0.25, st.Audio.Level, 1e-6)
	assert.Equal(t, uint64(3200), st.Audio.SamplesStreamed)
	require.NotNil(t, st.Session)
	assert.Equal(t, "streaming", st.Session.State)
	assert.Equal(t, uint64(7), st.Session.SessionsStarted)
	assert.Equal(t, "s1", st.Session.CurrentID)
	require.NotNil(t, st.Session.CurrentStarted)
	assert.True(t, st.Session.CurrentStarted.Equal(started))
}

func TestStatusWithoutCollaborators(t *testing.T) {
	t.Parallel()
	s := New(Config{})

	rec := do(t, s, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[StatusResponse](t, rec)
	assert.Nil(t, st.WakeWord)
	assert.Nil(t, st.Audio)
	assert.Nil(t, st.Session)
}

func TestWakeWordControl(t *testing.T) {
	t.Parallel()
	det := &fakeDetector{}
	s := New(Config{}, WithDetector(det))

	rec := do(t, s, http.MethodPost, "/api/v1/wakeword/enable", "")
	require.Equal(t, http.StatusOK, rec.Code)
	det.mu.Lock()
	assert.True(t, det.enabled)
	require.NotNil(t, det.enableCtx)
	assert.NoError(t, det.enableCtx.Err(), "detector runs on the server context, not the request")
	det.mu.Unlock()

	rec = do(t, s, http.MethodPost, "/api/v1/wakeword/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/wakeword/disable", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[ActionResult](t, rec).Success)

	det.mu.Lock()
	defer det.mu.Unlock()
	assert.False(t, det.enabled)
	assert.Equal(t, 1, det.resets)
}

func TestSetThreshold(t *testing.T) {
	t.Parallel()
	det := &fakeDetector{threshold: 0.5}
	s := New(Config{}, WithDetector(det))

	rec := do(t, s, http.MethodPut, "/api/v1/wakeword/threshold", `{"threshold":0.7}`)
	require.Equal(t, http.StatusOK, rec.Code)
	det.mu.Lock()
	assert.InDelta(t, 0.7, det.threshold, 1e-6)
	det.mu.Unlock()

	for _, body := range []string{`{"threshold":0}`, `{"threshold":1.5}`, `{}`, `not json`} {
		rec = do(t, s, http.MethodPut, "/api/v1/wakeword/threshold", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		resp := decode[ErrorResponse](t, rec)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
		assert.Len(t, resp.CorrelationID, 8)
	}

	det.mu.Lock()
	assert.InDelta(t, 0.7, det.threshold, 1e-6)
	det.mu.Unlock()
}

func TestControlUnavailable(t *testing.T) {
	t.Parallel()
	s := New(Config{})

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/v1/wakeword/enable"},
		{http.MethodPost, "/api/v1/wakeword/disable"},
		{http.MethodPost, "/api/v1/wakeword/reset"},
		{http.MethodPut, "/api/v1/wakeword/threshold"},
		{http.MethodGet, "/api/v1/detections"},
		{http.MethodPost, "/api/v1/detections/x/false-positive"},
		{http.MethodPost, "/api/v1/session/push-to-talk"},
	} {
		rec := do(t, s, tc.method, tc.path, "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, tc.path)
	}
}

func TestGetDetections(t *testing.T) {
	t.Parallel()
	store := openStore(t)
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.SaveDetection(t.Context(), &datastore.Detection{
			ID:         id,
			SessionID:  "s-" + id,
			Confidence: 0.9,
			DetectedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	s := New(Config{}, WithDataStore(store))

	rec := do(t, s, http.MethodGet, "/api/v1/detections", "")
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[[]DetectionResponse](t, rec)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID)
	assert.Equal(t, "s-c", all[0].SessionID)

	rec = do(t, s, http.MethodGet, "/api/v1/detections?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]DetectionResponse](t, rec), 1)

	rec = do(t, s, http.MethodGet, "/api/v1/detections?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, s, http.MethodGet, "/api/v1/detections?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFalsePositiveWindow(t *testing.T) {
	t.Parallel()
	store := openStore(t)
	require.NoError(t, store.SaveDetection(t.Context(), &datastore.Detection{ID: "d1", DetectedAt: time.Now()}))

	det := &fakeDetector{}
	fb := NewFeedback(time.Minute)
	fb.Remember(wakeword.Detection{ID: "d1"})
	fb.Remember(wakeword.Detection{ID: "d2"}) // not in history yet
	s := New(Config{}, WithDetector(det), WithDataStore(store), WithFeedback(fb))

	rec := do(t, s, http.MethodPost, "/api/v1/detections/d1/false-positive", "")
	require.Equal(t, http.StatusOK, rec.Code)

	d, err := store.GetDetection(t.Context(), "d1")
	require.NoError(t, err)
	assert.True(t, d.FalsePositive)

	// only once per detection
	rec = do(t, s, http.MethodPost, "/api/v1/detections/d1/false-positive", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/detections/unknown/false-positive", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	// missing history row is tolerated
	rec = do(t, s, http.MethodPost, "/api/v1/detections/d2/false-positive", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	det.mu.Lock()
	defer det.mu.Unlock()
	assert.Equal(t, uint64(2), det.falsePositives)
}

func TestFeedbackExpires(t *testing.T) {
	t.Parallel()
	fb := NewFeedback(20 * time.Millisecond)
	fb.Remember(wakeword.Detection{ID: "d1", Confidence: 0.9})

	time.Sleep(40 * time.Millisecond)
	_, ok := fb.Take("d1")
	assert.False(t, ok)

	fb.Remember(wakeword.Detection{ID: "d2", Confidence: 0.8})
	d, ok := fb.Take("d2")
	require.True(t, ok)
	assert.InDelta(t, 0.8, d.Confidence, 1e-6)
}

func TestPushToTalk(t *testing.T) {
	t.Parallel()
	sessions := &fakeSessions{state: session.StateIdle}
	s := New(Config{}, WithSessions(sessions))

	rec := do(t, s, http.MethodPost, "/api/v1/session/push-to-talk", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/session/push-to-talk", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 1, sessions.pushes)
}

func TestRunServesAndShutsDown(t *testing.T) {
	t.Parallel()
	s := New(Config{Listen: "127.0.0.1:0"})

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Addr() != nil }, 2*time.Second, 10*time.Millisecond)

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}, Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + s.Addr().String() + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunFailsOnBadAddress(t *testing.T) {
	t.Parallel()
	s := New(Config{Listen: "256.0.0.1:99999"})

	err := s.Run(t.Context())
	require.Error(t, err)
}
