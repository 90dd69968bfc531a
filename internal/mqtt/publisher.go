package mqtt

import (
	"context"
	"encoding/json"

	"github.com/tphakala/voicetrigger/internal/errors"
	"github.com/tphakala/voicetrigger/internal/session"
)

const (
	detectionSubtopic = "detection"
	sessionSubtopic   = "session"
)

// Publisher is a session.Sink that publishes session lifecycle events.
type Publisher struct {
	client Client
	topic  string
	nodeID string
}

// NewPublisher returns a publisher sending to <topic>/detection and
// <topic>/session.
func NewPublisher(client Client, topic, nodeID string) *Publisher {
	if topic == "" {
		topic = DefaultConfig().Topic
	}
	return &Publisher{client: client, topic: topic, nodeID: nodeID}
}

func (p *Publisher) Name() string { return "mqtt" }

// DetectionTopic returns the detection event topic.
func (p *Publisher) DetectionTopic() string { return p.topic + "/" + detectionSubtopic }

// SessionTopic returns the session event topic.
func (p *Publisher) SessionTopic() string { return p.topic + "/" + sessionSubtopic }

func (p *Publisher) SessionStarted(ctx context.Context, info session.Info) error {
	var errs []error
	if dto := NewDetectionEventDTO(&info, p.nodeID); dto != nil {
		errs = append(errs, p.publishJSON(ctx, p.DetectionTopic(), dto))
	}
	errs = append(errs, p.publishJSON(ctx, p.SessionTopic(), NewSessionEventDTO(&info, p.nodeID)))
	return errors.Join(errs...)
}

func (p *Publisher) Audio(context.Context, session.Info, []int16) error { return nil }

func (p *Publisher) SessionEnded(ctx context.Context, info session.Info) error {
	return p.publishJSON(ctx, p.SessionTopic(), NewSessionEventDTO(&info, p.nodeID))
}

func (p *Publisher) publishJSON(ctx context.Context, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("operation", "marshal_event").
			Context("topic", topic).
			Build()
	}
	return p.client.Publish(ctx, topic, string(payload))
}
