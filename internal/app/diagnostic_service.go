package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"neuroaid-diagnostic-service/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionRepository abstracts how quiz session snapshots are stored (in-memory, Redis, etc).
type SessionRepository interface {
	Create(ctx context.Context, snapshot domain.SessionSnapshot) error
	Get(ctx context.Context, sessionID string) (domain.SessionSnapshot, error)
	Save(ctx context.Context, snapshot domain.SessionSnapshot) error
	Delete(ctx context.Context, sessionID string) error
}

// CatalogRepository loads quiz content (from cache/backing store).
type CatalogRepository interface {
	GetCatalog(ctx context.Context, catalogID string) (domain.Catalog, error)
}

// Scorer turns a completed tally into a verdict.
type Scorer interface {
	Score(ctx context.Context, req domain.ScoreRequest) (domain.ResultSummary, error)
}

// AssessmentRecorder stores finished assessments.
type AssessmentRecorder interface {
	SaveAssessment(ctx context.Context, record domain.AssessmentRecord) error
}

// EventPublisher announces finished assessments.
type EventPublisher interface {
	PublishAssessmentCompleted(ctx context.Context, event domain.AssessmentCompleted) error
}

// Metrics observes session activity. Outcome is one of "scored", "cached" or "failed".
type Metrics interface {
	SessionStarted(catalogID string)
	AnswerRecorded(phase domain.Phase)
	Finalized(outcome string, took time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) SessionStarted(string) {}
func (nopMetrics) AnswerRecorded(domain.Phase) {}
func (nopMetrics) Finalized(string, time.Duration) {}

// DiagnosticService contains the quiz session use cases.
type DiagnosticService struct {
	sessions  SessionRepository
	catalogs  CatalogRepository
	scorer    Scorer
	recorder  AssessmentRecorder
	publisher EventPublisher
	logger    *zap.Logger
	metrics   Metrics

	defaultCatalog string
	now            func() time.Time
	newID          func() string
	locks          keyedMutex
	updates        *broadcaster
}

// Option customizes a DiagnosticService.
type Option func(*DiagnosticService)

// WithRecorder sets the persistence collaborator called after scoring.
func WithRecorder(r AssessmentRecorder) Option {
	return func(s *DiagnosticService) { s.recorder = r }
}

// WithPublisher sets where assessment.completed events go.
func WithPublisher(p EventPublisher) Option {
	return func(s *DiagnosticService) { s.publisher = p }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *DiagnosticService) { s.logger = l }
}

// WithMetrics sets the observer for session activity.
func WithMetrics(m Metrics) Option {
	return func(s *DiagnosticService) { s.metrics = m }
}

// WithDefaultCatalog selects the catalog used when Start is given an empty ID.
func WithDefaultCatalog(id string) Option {
	return func(s *DiagnosticService) {
		if id != "" {
			s.defaultCatalog = id
		}
	}
}

// WithClock is for deterministic timestamps in tests.
func WithClock(now func() time.Time) Option {
	return func(s *DiagnosticService) { s.now = now }
}

// WithIDGenerator overrides session ID generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *DiagnosticService) { s.newID = gen }
}

// NewDiagnosticService wires the use cases over the given stores and scorer.
// Recorder and publisher are optional and skipped when unset.
func NewDiagnosticService(sessions SessionRepository, catalogs CatalogRepository, scorer Scorer, opts ...Option) *DiagnosticService {
	s := &DiagnosticService{
		sessions:       sessions,
		catalogs:       catalogs,
		scorer:         scorer,
		logger:         zap.NewNop(),
		metrics:        nopMetrics{},
		defaultCatalog: domain.DefaultCatalogID,
		now:            time.Now,
		newID:          uuid.NewString,
		locks:          keyedMutex{locks: make(map[string]*refLock)},
		updates:        newBroadcaster(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start creates a new session positioned on the first checklist item.
func (s *DiagnosticService) Start(ctx context.Context, catalogID string) (domain.SessionView, error) {
	if catalogID == "" {
		catalogID = s.defaultCatalog
	}
	catalog, err := s.catalogs.GetCatalog(ctx, catalogID)
	if err != nil {
		return domain.SessionView{}, err
	}

	ctrl := NewController(catalog)
	now := s.now()
	snap := domain.SessionSnapshot{
		ID:        s.newID(),
		CatalogID: catalog.ID,
		State:     ctrl.State(),
		ShownAt:   now,
		CreatedAt: now,
	}
	if err := s.sessions.Create(ctx, snap); err != nil {
		return domain.SessionView{}, fmt.Errorf("create session: %w", err)
	}
	s.metrics.SessionStarted(catalog.ID)
	s.logger.Info("session started", zap.String("session_id", snap.ID), zap.String("catalog_id", catalog.ID))
	return sessionView(snap, ctrl), nil
}

// Get returns the current view of a session.
func (s *DiagnosticService) Get(ctx context.Context, sessionID string) (domain.SessionView, error) {
	snap, ctrl, err := s.load(ctx, sessionID)
	if err != nil {
		return domain.SessionView{}, err
	}
	return sessionView(snap, ctrl), nil
}

// Answer records value for the current item. A nil elapsedMs is measured from when the item was shown.
func (s *DiagnosticService) Answer(ctx context.Context, sessionID, value string, elapsedMs *int64) (domain.SessionView, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	snap, ctrl, err := s.load(ctx, sessionID)
	if err != nil {
		return domain.SessionView{}, err
	}
	if snap.Finalized {
		return domain.SessionView{}, domain.ErrSessionFinalized
	}

	answeredIn := ctrl.State().Phase
	now := s.now()
	elapsed := now.Sub(snap.ShownAt).Milliseconds()
	if elapsedMs != nil {
		elapsed = *elapsedMs
	}
	transition, err := ctrl.RecordAndAdvance(value, elapsed)
	if err != nil {
		return domain.SessionView{}, err
	}

	snap.State = ctrl.State()
	snap.ShownAt = now
	if err := s.sessions.Save(ctx, snap); err != nil {
		return domain.SessionView{}, fmt.Errorf("save session: %w", err)
	}
	s.metrics.AnswerRecorded(answeredIn)
	s.logger.Debug("answer recorded",
		zap.String("session_id", sessionID),
		zap.String("phase", string(transition.Phase)),
		zap.Int("position", transition.Position),
		zap.Int64("elapsed_ms", elapsed),
	)
	view := sessionView(snap, ctrl)
	s.updates.publish(view)
	return view, nil
}

// Back steps to the previous item within the active phase.
func (s *DiagnosticService) Back(ctx context.Context, sessionID string) (domain.SessionView, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	snap, ctrl, err := s.load(ctx, sessionID)
	if err != nil {
		return domain.SessionView{}, err
	}
	if snap.Finalized {
		return domain.SessionView{}, domain.ErrSessionFinalized
	}
	if _, err := ctrl.GoBack(); err != nil {
		return domain.SessionView{}, err
	}

	snap.State = ctrl.State()
	snap.ShownAt = s.now()
	if err := s.sessions.Save(ctx, snap); err != nil {
		return domain.SessionView{}, fmt.Errorf("save session: %w", err)
	}
	view := sessionView(snap, ctrl)
	s.updates.publish(view)
	return view, nil
}

// Finalize hands a completed tally to the scorer, stores the verdict and announces it.
// Once it has succeeded, later calls return the stored verdict without rescoring.
func (s *DiagnosticService) Finalize(ctx context.Context, sessionID string) (domain.ResultSummary, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	snap, ctrl, err := s.load(ctx, sessionID)
	if err != nil {
		return domain.ResultSummary{}, err
	}
	if snap.Finalized && snap.Result != nil {
		s.metrics.Finalized("cached", 0)
		return *snap.Result, nil
	}

	payload, err := ctrl.Payload()
	if err != nil {
		return domain.ResultSummary{}, err
	}

	started := s.now()
	summary, err := s.scorer.Score(ctx, payload)
	if err != nil {
		if !errors.Is(err, domain.ErrScoringFailed) && !errors.Is(err, domain.ErrMalformedScore) {
			err = fmt.Errorf("%w: %v", domain.ErrScoringFailed, err)
		}
		s.metrics.Finalized("failed", s.now().Sub(started))
		s.logger.Warn("scoring failed", zap.String("session_id", sessionID), zap.Error(err))
		return domain.ResultSummary{}, err
	}

	took := s.now().Sub(started)
	s.metrics.Finalized("scored", took)

	snap.Finalized = true
	snap.Result = &summary
	if err := s.sessions.Save(ctx, snap); err != nil {
		return domain.ResultSummary{}, fmt.Errorf("save session: %w", err)
	}
	s.updates.publish(sessionView(snap, ctrl))

	record := domain.NewAssessmentRecord(payload, summary)
	if s.recorder != nil {
		if err := s.recorder.SaveAssessment(ctx, record); err != nil {
			s.logger.Warn("save assessment failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	if s.publisher != nil {
		event := domain.AssessmentCompleted{
			SessionID:   sessionID,
			CatalogID:   snap.CatalogID,
			CompletedAt: s.now(),
			Record:      record,
		}
		if err := s.publisher.PublishAssessmentCompleted(ctx, event); err != nil {
			s.logger.Warn("publish assessment failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}

	s.logger.Info("session finalized",
		zap.String("session_id", sessionID),
		zap.String("risk_level", summary.RiskLevel),
		zap.String("dominant_type", summary.DominantType),
		zap.Duration("scoring_took", took),
	)
	return summary, nil
}

// Subscribe returns a channel that receives the session's view after every change, starting
// with the current one. The caller must invoke the returned cancel function to avoid leaks.
func (s *DiagnosticService) Subscribe(ctx context.Context, sessionID string) (<-chan domain.SessionView, func(), error) {
	view, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.updates.subscribe(sessionID, view)
	return ch, cancel, nil
}

// Abandon drops a session and closes its subscriptions.
func (s *DiagnosticService) Abandon(ctx context.Context, sessionID string) error {
	unlock := s.locks.Lock(sessionID)
	defer unlock()
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return err
	}
	s.updates.closeSession(sessionID)
	s.logger.Info("session abandoned", zap.String("session_id", sessionID))
	return nil
}

func (s *DiagnosticService) load(ctx context.Context, sessionID string) (domain.SessionSnapshot, *Controller, error) {
	snap, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.SessionSnapshot{}, nil, err
	}
	catalog, err := s.catalogs.GetCatalog(ctx, snap.CatalogID)
	if err != nil {
		return domain.SessionSnapshot{}, nil, err
	}
	ctrl, err := RestoreController(catalog, snap.State)
	if err != nil {
		return domain.SessionSnapshot{}, nil, err
	}
	return snap, ctrl, nil
}

func sessionView(snap domain.SessionSnapshot, ctrl *Controller) domain.SessionView {
	view := domain.SessionView{
		SessionID:  snap.ID,
		CatalogID:  snap.CatalogID,
		Transition: ctrl.Transition(),
		Finalized:  snap.Finalized,
	}
	if item, ok := ctrl.CurrentItem(); ok {
		view.Item = &item
	}
	if snap.Result != nil {
		r := *snap.Result
		view.Result = &r
	}
	return view
}
