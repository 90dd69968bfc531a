package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/voicetrigger/internal/session"
	"github.com/tphakala/voicetrigger/internal/wakeword"
)

type published struct {
	topic   string
	payload string
}

type fakeClient struct {
	mu        sync.Mutex
	messages  []published
	connected bool
}

func (f *fakeClient) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeClient) Publish(_ context.Context, topic, payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return fmt.Errorf("not connected")
	}
	f.messages = append(f.messages, published{topic, payload})
	return nil
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) Disconnect() {}

func startedInfo() session.Info {
	return session.Info{
		ID:      "sess-1",
		Trigger: session.TriggerWakeWord,
		Room:    "kitchen",
		Detection: &wakeword.Detection{
			ID:         "det-1",
			Confidence: 0.91,
			LatencyMs:  14,
			Time:       time.Date(2026, 5, 1, 7, 30, 0, 0, time.UTC),
		},
		Started: time.Date(2026, 5, 1, 7, 30, 0, 0, time.UTC),
	}
}

func TestPublisherTopics(t *testing.T) {
	t.Parallel()

	p := NewPublisher(&fakeClient{}, "", "node")
	assert.Equal(t, "voicetrigger/detection", p.DetectionTopic())
	assert.Equal(t, "voicetrigger/session", p.SessionTopic())
	assert.Equal(t, "mqtt", p.Name())
}

func TestPublisherSessionStartedPublishesDetectionAndSession(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{connected: true}
	p := NewPublisher(fc, "home/voice", "kitchen-01")

	require.NoError(t, p.SessionStarted(t.Context(), startedInfo()))
	require.Len(t, fc.messages, 2)

	assert.Equal(t, "home/voice/detection", fc.messages[0].topic)
	assert.JSONEq(t, `{
		"detectionId": "det-1",
		"sessionId": "sess-1",
		"nodeId": "kitchen-01",
		"room": "kitchen",
		"confidence": 0.91,
		"latencyMs": 14,
		"time": "2026-05-01T07:30:00Z"
	}`, fc.messages[0].payload)

	assert.Equal(t, "home/voice/session", fc.messages[1].topic)
	var ev SessionEventDTO
	require.NoError(t, json.Unmarshal([]byte(fc.messages[1].payload), &ev))
	assert.Equal(t, "started", ev.State)
	assert.Equal(t, "wakeword", ev.Trigger)
	assert.Empty(t, ev.Reason)
}

func TestPublisherPushToTalkHasNoDetection(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{connected: true}
	p := NewPublisher(fc, "vt", "")

	info := startedInfo()
	info.Detection = nil
	info.Trigger = session.TriggerPushToTalk
	require.NoError(t, p.SessionStarted(t.Context(), info))
	require.Len(t, fc.messages, 1)
	assert.Equal(t, "vt/session", fc.messages[0].topic)
}

func TestPublisherSessionEnded(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{connected: true}
	p := NewPublisher(fc, "vt", "")

	info := startedInfo()
	info.Ended = info.Started.Add(2500 * time.Millisecond)
	info.Reason = session.EndSilence
	info.Samples = 40000

	require.NoError(t, p.Audio(t.Context(), info, make([]int16, 320)))
	require.NoError(t, p.SessionEnded(t.Context(), info))
	require.Len(t, fc.messages, 1)

	var ev SessionEventDTO
	require.NoError(t, json.Unmarshal([]byte(fc.messages[0].payload), &ev))
	assert.Equal(t, "ended", ev.State)
	assert.Equal(t, "silence", ev.Reason)
	assert.Equal(t, int64(2500), ev.DurationMs)
	assert.Equal(t, uint64(40000), ev.Samples)
	assert.True(t, ev.Time.Equal(info.Ended))
}

func TestPublisherReportsPublishErrors(t *testing.T) {
	t.Parallel()

	p := NewPublisher(&fakeClient{}, "vt", "")
	require.Error(t, p.SessionStarted(t.Context(), startedInfo()))
}

func TestDetectionTimeFallsBackToSessionStart(t *testing.T) {
	t.Parallel()

	info := startedInfo()
	info.Detection.Time = time.Time{}
	dto := NewDetectionEventDTO(&info, "")
	require.NotNil(t, dto)
	assert.Equal(t, info.Started, dto.Time)
}
