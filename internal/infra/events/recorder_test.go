package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"neuroaid-diagnostic-service/internal/domain"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type flakyRecorder struct {
	mu       sync.Mutex
	failures int
	calls    int
	saved    []domain.AssessmentRecord
}

func (r *flakyRecorder) SaveAssessment(_ context.Context, record domain.AssessmentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.failures != 0 {
		if r.failures > 0 {
			r.failures--
		}
		return errors.New("backend unavailable")
	}
	r.saved = append(r.saved, record)
	return nil
}

func (r *flakyRecorder) snapshot() (int, []domain.AssessmentRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls, append([]domain.AssessmentRecord(nil), r.saved...)
}

func TestRecorderRouterRetriesFailedSaves(t *testing.T) {
	recorder := &flakyRecorder{failures: 2}
	publisher := startRecorder(t, recorder, RecorderConfig{MaxRetries: 3, RetryInterval: time.Millisecond})

	require.NoError(t, publisher.PublishAssessmentCompleted(context.Background(), sampleEvent("s-1")))

	assert.Eventually(t, func() bool {
		_, saved := recorder.snapshot()
		return len(saved) == 1
	}, 5*time.Second, 10*time.Millisecond)

	calls, saved := recorder.snapshot()
	assert.Equal(t, 3, calls)
	assert.Equal(t, domain.AssessmentKind, saved[0].Kind)
	assert.Equal(t, "Mild Risk", saved[0].RiskLevel)
}

func TestRecorderRouterDropsAfterRetries(t *testing.T) {
	recorder := &flakyRecorder{failures: -1}
	publisher := startRecorder(t, recorder, RecorderConfig{MaxRetries: 1, RetryInterval: time.Millisecond})

	require.NoError(t, publisher.PublishAssessmentCompleted(context.Background(), sampleEvent("s-2")))

	assert.Eventually(t, func() bool {
		calls, _ := recorder.snapshot()
		return calls == 2
	}, 5*time.Second, 10*time.Millisecond)

	// a dropped event is acked, so nothing is redelivered
	time.Sleep(100 * time.Millisecond)
	calls, saved := recorder.snapshot()
	assert.Equal(t, 2, calls)
	assert.Empty(t, saved)
}

func TestRecorderRouterSkipsUndecodableEvents(t *testing.T) {
	recorder := &flakyRecorder{}
	pubsub := NewGoChannel(nil)
	router, err := NewRecorderRouter(pubsub, recorder, RecorderConfig{MaxRetries: 1, RetryInterval: time.Millisecond}, zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	runRouter(t, router)

	require.NoError(t, pubsub.Publish(DefaultTopic, message.NewMessage("bad", []byte("{"))))
	require.NoError(t, NewPublisher(pubsub, "", nil).PublishAssessmentCompleted(context.Background(), sampleEvent("s-3")))

	assert.Eventually(t, func() bool {
		_, saved := recorder.snapshot()
		return len(saved) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func startRecorder(t *testing.T, recorder AssessmentRecorder, cfg RecorderConfig) *Publisher {
	t.Helper()
	pubsub := NewGoChannel(nil)
	router, err := NewRecorderRouter(pubsub, recorder, cfg, zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	runRouter(t, router)
	return NewPublisher(pubsub, cfg.Topic, zaptest.NewLogger(t))
}

func runRouter(t *testing.T, router *message.Router) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = router.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-router.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("recorder router did not start")
	}
}

func sampleEvent(sessionID string) domain.AssessmentCompleted {
	return domain.AssessmentCompleted{
		SessionID:   sessionID,
		CatalogID:   domain.DefaultCatalogID,
		CompletedAt: time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC),
		Record: domain.NewAssessmentRecord(
			domain.ScoreRequest{
				Scores:            map[domain.Category]int{domain.CategoryVisual: 1},
				ReactionTimes:     []int64{1000},
				ChecklistYesCount: 4,
			},
			domain.ResultSummary{RiskLevel: "Mild Risk", DominantType: "visual", AvgTime: 1, Tips: "Line focus."},
		),
	}
}
