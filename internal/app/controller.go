package app

import (
	"fmt"

	"neuroaid-diagnostic-service/internal/domain"
)

// Controller steps one quiz run through its checklist phase and then its task phase.
// It is a plain state machine: it does no I/O and is not safe for concurrent use.
type Controller struct {
	catalog domain.Catalog
	state   domain.SessionState
}

// NewController starts a fresh run over catalog.
func NewController(catalog domain.Catalog) *Controller {
	return &Controller{catalog: catalog, state: freshState()}
}

// RestoreController rebuilds a controller from a persisted state, rejecting states that do not fit catalog.
// GoBack keeps tallies, so re-answered items may push counts and samples past one per item; only lower bounds hold.
func RestoreController(catalog domain.Catalog, state domain.SessionState) (*Controller, error) {
	state = state.Clone()
	if state.CategoryScores == nil {
		state.CategoryScores = make(map[domain.Category]int)
	}
	for c, n := range state.CategoryScores {
		if !c.Valid() {
			return nil, fmt.Errorf("%w: unknown category %q", domain.ErrInvalidState, c)
		}
		if n < 0 || (state.Phase == domain.PhaseChecklist && n != 0) {
			return nil, fmt.Errorf("%w: category %s scored %d in phase %s", domain.ErrInvalidState, c, n, state.Phase)
		}
	}
	for _, c := range domain.Categories() {
		if _, ok := state.CategoryScores[c]; !ok {
			state.CategoryScores[c] = 0
		}
	}
	if state.ReactionTimes == nil {
		state.ReactionTimes = []int64{}
	}

	var limit, minSamples int
	switch state.Phase {
	case domain.PhaseChecklist:
		limit = len(catalog.Checklist) - 1
	case domain.PhaseTasks:
		limit = len(catalog.Tasks) - 1
		minSamples = state.Position
	case domain.PhaseComplete:
		limit = len(catalog.Tasks)
		minSamples = len(catalog.Tasks)
	default:
		return nil, fmt.Errorf("%w: unknown phase %q", domain.ErrInvalidState, state.Phase)
	}
	if state.Position < 0 || state.Position > limit {
		return nil, fmt.Errorf("%w: position %d out of range for phase %s", domain.ErrInvalidState, state.Position, state.Phase)
	}
	if state.ChecklistYesCount < 0 {
		return nil, fmt.Errorf("%w: checklist count %d", domain.ErrInvalidState, state.ChecklistYesCount)
	}
	samples := len(state.ReactionTimes)
	if samples < minSamples || (state.Phase == domain.PhaseChecklist && samples != 0) {
		return nil, fmt.Errorf("%w: %d reaction times at position %d of phase %s", domain.ErrInvalidState, samples, state.Position, state.Phase)
	}
	for _, ms := range state.ReactionTimes {
		if ms < 0 {
			return nil, fmt.Errorf("%w: negative reaction time %d", domain.ErrInvalidState, ms)
		}
	}
	return &Controller{catalog: catalog, state: state}, nil
}

func freshState() domain.SessionState {
	scores := make(map[domain.Category]int, len(domain.Categories()))
	for _, c := range domain.Categories() {
		scores[c] = 0
	}
	return domain.SessionState{
		Phase:          domain.PhaseChecklist,
		CategoryScores: scores,
		ReactionTimes:  []int64{},
	}
}

// State returns a copy of the current tally.
func (c *Controller) State() domain.SessionState {
	return c.state.Clone()
}

// CurrentItem returns the item at the current position, or false once the phase has run out.
func (c *Controller) CurrentItem() (domain.DisplayableItem, bool) {
	pos := c.state.Position
	switch c.state.Phase {
	case domain.PhaseChecklist:
		if pos >= len(c.catalog.Checklist) {
			return domain.DisplayableItem{}, false
		}
		return domain.DisplayableItem{
			Phase:  domain.PhaseChecklist,
			Index:  pos,
			Prompt: c.catalog.Checklist[pos],
		}, true
	case domain.PhaseTasks:
		if pos >= len(c.catalog.Tasks) {
			return domain.DisplayableItem{}, false
		}
		task := c.catalog.Tasks[pos]
		return domain.DisplayableItem{
			Phase:     domain.PhaseTasks,
			Index:     pos,
			Prompt:    task.Prompt,
			Category:  task.Category,
			Choices:   append([]string(nil), task.Choices...),
			VoiceOnly: task.VoiceOnly,
		}, true
	}
	return domain.DisplayableItem{}, false
}

// RecordAndAdvance records the answer for the current item and moves on.
// An empty selected value counts as no answer; it never matches and never errors.
func (c *Controller) RecordAndAdvance(selected string, elapsedMs int64) (domain.Transition, error) {
	switch c.state.Phase {
	case domain.PhaseChecklist:
		if selected == domain.YesAnswer {
			c.state.ChecklistYesCount++
		}
		c.state.Position++
		if c.state.Position >= len(c.catalog.Checklist) {
			c.state.Phase = domain.PhaseTasks
			c.state.Position = 0
		}
	case domain.PhaseTasks:
		if elapsedMs < 0 {
			elapsedMs = 0
		}
		task := c.catalog.Tasks[c.state.Position]
		c.state.ReactionTimes = append(c.state.ReactionTimes, elapsedMs)
		if selected != "" && selected == task.ExpectedAnswer {
			c.state.CategoryScores[task.Category]++
		}
		c.state.Position++
		if c.state.Position >= len(c.catalog.Tasks) {
			c.state.Phase = domain.PhaseComplete
		}
	default:
		return c.Transition(), domain.ErrSessionComplete
	}
	return c.Transition(), nil
}

// GoBack steps to the previous item of the active phase. It never crosses back into the checklist.
func (c *Controller) GoBack() (domain.Transition, error) {
	if c.state.Phase == domain.PhaseComplete {
		return c.Transition(), domain.ErrSessionComplete
	}
	if c.state.Position == 0 {
		return c.Transition(), domain.ErrAtPhaseStart
	}
	c.state.Position--
	return c.Transition(), nil
}

// Transition reports the current phase, position and overall progress.
func (c *Controller) Transition() domain.Transition {
	total := c.catalog.Total()
	completed := c.state.Position
	switch c.state.Phase {
	case domain.PhaseTasks:
		completed = len(c.catalog.Checklist) + c.state.Position
	case domain.PhaseComplete:
		completed = total
	}
	return domain.Transition{
		Phase:     c.state.Phase,
		Position:  c.state.Position,
		Completed: completed,
		Total:     total,
	}
}

// Complete reports whether every item has been answered.
func (c *Controller) Complete() bool {
	return c.state.Phase == domain.PhaseComplete
}

// Payload builds the outbound scoring request. Scoring itself is someone else's job.
func (c *Controller) Payload() (domain.ScoreRequest, error) {
	if !c.Complete() {
		return domain.ScoreRequest{}, domain.ErrSessionIncomplete
	}
	st := c.state.Clone()
	return domain.ScoreRequest{
		Scores:            st.CategoryScores,
		ReactionTimes:     st.ReactionTimes,
		ChecklistYesCount: st.ChecklistYesCount,
	}, nil
}
