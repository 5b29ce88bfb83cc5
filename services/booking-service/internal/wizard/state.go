package wizard

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrInvalidTransition = errors.New("invalid wizard transition")
	ErrNoMenus           = errors.New("select at least one menu")
	ErrNoSlot            = errors.New("select a time slot or a consultation date")
	ErrPastWeek          = errors.New("week offset must not be negative")
	ErrFinished          = errors.New("booking already submitted")
)

type Step int

const (
	StepMenuSelection Step = iota
	StepSlotSelection
	StepConfirmation
	StepSubmitted
)

var stepNames = map[Step]string{
	StepMenuSelection: "menu_selection",
	StepSlotSelection: "slot_selection",
	StepConfirmation:  "confirmation",
	StepSubmitted:     "submitted",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("step(%d)", int(s))
}

func (s Step) MarshalText() ([]byte, error) {
	name, ok := stepNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown step %d", int(s))
	}
	return []byte(name), nil
}

func (s *Step) UnmarshalText(b []byte) error {
	for step, name := range stepNames {
		if name == string(b) {
			*s = step
			return nil
		}
	}
	return fmt.Errorf("unknown step %q", string(b))
}

// Choice is either a concrete slot (Date + Time) or a consultation request for Date.
type Choice struct {
	Date         string `json:"date"`
	Time         string `json:"time,omitempty"`
	Consultation bool   `json:"consultation,omitempty"`
}

// State is one step of a booking attempt. Values are never mutated by Transition.
type State struct {
	Step            Step     `json:"step"`
	MenuIDs         []string `json:"menu_ids,omitempty"`
	DurationMinutes int      `json:"duration_minutes"`
	WeekOffset      int      `json:"week_offset"`
	Choice          *Choice  `json:"choice,omitempty"`
	UserRequests    string   `json:"user_requests,omitempty"`
	ReservationID   string   `json:"reservation_id,omitempty"`
}

func New() State {
	return State{Step: StepMenuSelection}
}

func (s State) clone() State {
	out := s
	out.MenuIDs = slices.Clone(s.MenuIDs)
	if s.Choice != nil {
		c := *s.Choice
		out.Choice = &c
	}
	return out
}

func (s State) hasMenus() bool {
	return len(s.MenuIDs) > 0 && s.DurationMinutes > 0
}
