package domain

import (
	"fmt"
	"time"
)

// Category tags the reading-skill dimension a task measures.
type Category string

const (
	CategoryPhonological Category = "phonological"
	CategorySurface      Category = "surface"
	CategoryVisual       Category = "visual"
	CategoryAuditory     Category = "auditory"
)

// Categories lists every known category in display order.
func Categories() []Category {
	return []Category{CategoryPhonological, CategorySurface, CategoryVisual, CategoryAuditory}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryPhonological, CategorySurface, CategoryVisual, CategoryAuditory:
		return true
	}
	return false
}

// Phase is the stage a quiz session is in.
type Phase string

const (
	PhaseChecklist Phase = "checklist"
	PhaseTasks     Phase = "tasks"
	PhaseComplete  Phase = "complete"
)

// YesAnswer is the only checklist value that counts toward the risk tally.
const YesAnswer = "yes"

// TaskItem is a cognitive-skill question scored by category.
type TaskItem struct {
	Category       Category `json:"category" validate:"required"`
	Prompt         string   `json:"prompt" validate:"required"`
	Choices        []string `json:"choices,omitempty"`
	ExpectedAnswer string   `json:"expectedAnswer" validate:"required"`
	VoiceOnly      bool     `json:"voiceOnly,omitempty"`
}

// Validate checks the item invariants that the struct tags cannot express.
func (t TaskItem) Validate() error {
	if !t.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidCatalog, t.Category)
	}
	if t.ExpectedAnswer == "" {
		return fmt.Errorf("%w: task %q has no expected answer", ErrInvalidCatalog, t.Prompt)
	}
	if len(t.Choices) == 0 {
		if !t.VoiceOnly {
			return fmt.Errorf("%w: task %q has no choices and is not voice-only", ErrInvalidCatalog, t.Prompt)
		}
		return nil
	}
	for _, choice := range t.Choices {
		if choice == t.ExpectedAnswer {
			return nil
		}
	}
	return fmt.Errorf("%w: expected answer of task %q is not among its choices", ErrInvalidCatalog, t.Prompt)
}

// Catalog is the ordered content of one diagnostic quiz: checklist statements then tasks.
type Catalog struct {
	ID        string     `json:"id" validate:"required"`
	Checklist []string   `json:"checklist" validate:"required,min=1,dive,required"`
	Tasks     []TaskItem `json:"tasks" validate:"required,min=1,dive"`
}

// Total is the number of items across both phases.
func (c Catalog) Total() int {
	return len(c.Checklist) + len(c.Tasks)
}

// SessionState is the mutable tally of a single quiz run.
type SessionState struct {
	Phase             Phase            `json:"phase"`
	Position          int              `json:"position"`
	ChecklistYesCount int              `json:"checklistYesCount"`
	CategoryScores    map[Category]int `json:"categoryScores"`
	ReactionTimes     []int64          `json:"reactionTimes"`
}

// Clone returns a deep copy of the state.
func (s SessionState) Clone() SessionState {
	out := s
	out.CategoryScores = make(map[Category]int, len(s.CategoryScores))
	for k, v := range s.CategoryScores {
		out.CategoryScores[k] = v
	}
	out.ReactionTimes = make([]int64, len(s.ReactionTimes))
	copy(out.ReactionTimes, s.ReactionTimes)
	return out
}

// DisplayableItem is what a UI renders for the current position. It never carries the answer.
type DisplayableItem struct {
	Phase     Phase    `json:"phase"`
	Index     int      `json:"index"`
	Prompt    string   `json:"prompt"`
	Category  Category `json:"category,omitempty"`
	Choices   []string `json:"choices,omitempty"`
	VoiceOnly bool     `json:"voiceOnly,omitempty"`
}

// Transition describes where a session stands after an operation.
type Transition struct {
	Phase     Phase `json:"phase"`
	Position  int   `json:"position"`
	Completed int   `json:"completed"`
	Total     int   `json:"total"`
}

// ScoreRequest is the payload handed to the external scoring service.
type ScoreRequest struct {
	Scores            map[Category]int `json:"scores"`
	ReactionTimes     []int64          `json:"reactionTimes"`
	ChecklistYesCount int              `json:"checklistYesCount"`
}

// ResultSummary is the scoring service's verdict.
type ResultSummary struct {
	RiskLevel    string  `json:"riskLevel" validate:"required"`
	DominantType string  `json:"dominantType" validate:"required"`
	AvgTime      float64 `json:"avgTime" validate:"gte=0"`
	Tips         string  `json:"tips"`
}

// AssessmentKind marks a persisted record as a diagnostic assessment (as opposed to a game).
const AssessmentKind = "assessment"

// AssessmentRecord is the payload of the persistence call: the request plus the verdict.
type AssessmentRecord struct {
	Kind string `json:"kind"`
	ScoreRequest
	ResultSummary
}

// NewAssessmentRecord merges an outbound payload with the scoring verdict.
func NewAssessmentRecord(req ScoreRequest, summary ResultSummary) AssessmentRecord {
	return AssessmentRecord{Kind: AssessmentKind, ScoreRequest: req, ResultSummary: summary}
}

// SessionSnapshot is the persisted form of a quiz session.
type SessionSnapshot struct {
	ID        string         `json:"id"`
	CatalogID string         `json:"catalogId"`
	State     SessionState   `json:"state"`
	ShownAt   time.Time      `json:"shownAt"`
	CreatedAt time.Time      `json:"createdAt"`
	Finalized bool           `json:"finalized"`
	Result    *ResultSummary `json:"result,omitempty"`
}

// Clone returns a deep copy of the snapshot.
func (s SessionSnapshot) Clone() SessionSnapshot {
	out := s
	out.State = s.State.Clone()
	if s.Result != nil {
		r := *s.Result
		out.Result = &r
	}
	return out
}

// SessionView is the client-facing projection of a session.
type SessionView struct {
	SessionID  string           `json:"sessionId"`
	CatalogID  string           `json:"catalogId"`
	Transition Transition       `json:"transition"`
	Item       *DisplayableItem `json:"item,omitempty"`
	Finalized  bool             `json:"finalized"`
	Result     *ResultSummary   `json:"result,omitempty"`
}

// AssessmentCompleted is published once a session has been scored.
type AssessmentCompleted struct {
	SessionID   string           `json:"sessionId"`
	CatalogID   string           `json:"catalogId"`
	CompletedAt time.Time        `json:"completedAt"`
	Record      AssessmentRecord `json:"record"`
}
