package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"neuroaid-diagnostic-service/internal/domain"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"
)

const (
	// DefaultTopic carries assessment.completed events.
	DefaultTopic = "assessment.completed"

	eventTypeAssessmentCompleted = "assessment.completed"
)

// Publisher sends domain events through a Watermill publisher.
type Publisher struct {
	publisher message.Publisher
	topic     string
	logger    *zap.Logger
}

func NewPublisher(publisher message.Publisher, topic string, logger *zap.Logger) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{publisher: publisher, topic: topic, logger: logger}
}

// NewGoChannel builds the in-process pub/sub used when no broker is configured.
func NewGoChannel(logger watermill.LoggerAdapter) *gochannel.GoChannel {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)
}

// PublishAssessmentCompleted announces a scored session.
func (p *Publisher) PublishAssessmentCompleted(ctx context.Context, event domain.AssessmentCompleted) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal assessment event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("event_type", eventTypeAssessmentCompleted)
	msg.Metadata.Set("session_id", event.SessionID)
	msg.Metadata.Set("timestamp", event.CompletedAt.UTC().Format(time.RFC3339))

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		p.logger.Error("publish assessment event failed", zap.String("session_id", event.SessionID), zap.Error(err))
		return fmt.Errorf("publish assessment event: %w", err)
	}
	p.logger.Debug("assessment event published", zap.String("session_id", event.SessionID), zap.String("topic", p.topic))
	return nil
}

// Close releases the underlying publisher.
func (p *Publisher) Close() error {
	return p.publisher.Close()
}

// DecodeAssessmentCompleted reads an event back from a message.
func DecodeAssessmentCompleted(msg *message.Message) (domain.AssessmentCompleted, error) {
	var event domain.AssessmentCompleted
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return domain.AssessmentCompleted{}, fmt.Errorf("decode assessment event: %w", err)
	}
	return event, nil
}
