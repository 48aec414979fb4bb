package events

import (
	"context"
	"time"

	"neuroaid-diagnostic-service/internal/domain"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"go.uber.org/zap"
)

const recorderHandlerName = "assessment_recorder"

// AssessmentRecorder stores finished assessments.
type AssessmentRecorder interface {
	SaveAssessment(ctx context.Context, record domain.AssessmentRecord) error
}

// RecorderConfig controls how the recorder consumes assessment events.
type RecorderConfig struct {
	Topic         string
	MaxRetries    int
	RetryInterval time.Duration
}

// NewRecorderRouter builds a router that stores every assessment.completed event through recorder.
// Failed saves are retried with backoff; once retries run out the event is logged and dropped.
func NewRecorderRouter(subscriber message.Subscriber, recorder AssessmentRecorder, cfg RecorderConfig, logger *zap.Logger, wmLogger watermill.LoggerAdapter) (*message.Router, error) {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if wmLogger == nil {
		wmLogger = watermill.NopLogger{}
	}

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 10 * time.Second}, wmLogger)
	if err != nil {
		return nil, err
	}

	retry := middleware.Retry{
		MaxRetries:      cfg.MaxRetries,
		InitialInterval: cfg.RetryInterval,
		MaxInterval:     10 * cfg.RetryInterval,
		Multiplier:      2,
		Logger:          wmLogger,
	}
	// outermost first: give up after retries, retry, then turn panics into errors
	router.AddMiddleware(dropAfterRetries(logger), retry.Middleware, middleware.Recoverer)

	router.AddNoPublisherHandler(recorderHandlerName, cfg.Topic, subscriber, func(msg *message.Message) error {
		event, err := DecodeAssessmentCompleted(msg)
		if err != nil {
			return err
		}
		// the publishing request may be gone by now
		ctx := context.WithoutCancel(msg.Context())
		if err := recorder.SaveAssessment(ctx, event.Record); err != nil {
			logger.Warn("save assessment failed", zap.String("session_id", event.SessionID), zap.Error(err))
			return err
		}
		logger.Debug("assessment recorded", zap.String("session_id", event.SessionID))
		return nil
	})
	return router, nil
}

// dropAfterRetries acks messages whose handler still fails so the pub/sub does not redeliver them forever.
func dropAfterRetries(logger *zap.Logger) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			produced, err := h(msg)
			if err != nil {
				logger.Error("assessment dropped after retries",
					zap.String("message_uuid", msg.UUID),
					zap.String("session_id", msg.Metadata.Get("session_id")),
					zap.Error(err),
				)
				return nil, nil
			}
			return produced, nil
		}
	}
}
