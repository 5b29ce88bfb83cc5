package wizard

import (
	"fmt"
	"slices"
	"strings"
)

// Event is an input to Transition.
type Event interface {
	apply(State) (State, error)
}

// Transition returns the state that follows s after e.
func Transition(s State, e Event) (State, error) {
	if s.Step == StepSubmitted {
		return s, ErrFinished
	}
	if e == nil {
		return s, fmt.Errorf("%w: nil event", ErrInvalidTransition)
	}
	next, err := e.apply(s.clone())
	if err != nil {
		return s, err
	}
	return next, nil
}

func wrongStep(s State, event string) error {
	return fmt.Errorf("%w: %s during %s", ErrInvalidTransition, event, s.Step)
}

// SelectMenus replaces the menu selection. In slot selection it drops the chosen slot.
type SelectMenus struct {
	IDs             []string
	DurationMinutes int
}

func (e SelectMenus) apply(s State) (State, error) {
	switch s.Step {
	case StepMenuSelection:
	case StepSlotSelection:
		s.Choice = nil
	default:
		return s, wrongStep(s, "select_menus")
	}
	s.MenuIDs = slices.Clone(e.IDs)
	s.DurationMinutes = e.DurationMinutes
	if s.Step == StepSlotSelection && !s.hasMenus() {
		return s, ErrNoMenus
	}
	return s, nil
}

type ProceedToSlots struct{}

func (ProceedToSlots) apply(s State) (State, error) {
	if s.Step != StepMenuSelection {
		return s, wrongStep(s, "proceed_to_slots")
	}
	if !s.hasMenus() {
		return s, ErrNoMenus
	}
	s.Step = StepSlotSelection
	s.Choice = nil
	return s, nil
}

// ChangeWeek moves the visible week. Any chosen slot is dropped.
type ChangeWeek struct {
	Offset int
}

func (e ChangeWeek) apply(s State) (State, error) {
	if s.Step != StepSlotSelection {
		return s, wrongStep(s, "change_week")
	}
	if e.Offset < 0 {
		return s, ErrPastWeek
	}
	s.WeekOffset = e.Offset
	s.Choice = nil
	return s, nil
}

// PickSlot chooses a concrete start time. Offer checks happen before the event is built.
type PickSlot struct {
	Date string
	Time string
}

func (e PickSlot) apply(s State) (State, error) {
	if s.Step != StepSlotSelection {
		return s, wrongStep(s, "pick_slot")
	}
	if strings.TrimSpace(e.Date) == "" || strings.TrimSpace(e.Time) == "" {
		return s, ErrNoSlot
	}
	s.Choice = &Choice{Date: e.Date, Time: e.Time}
	return s, nil
}

type PickConsultation struct {
	Date string
}

func (e PickConsultation) apply(s State) (State, error) {
	if s.Step != StepSlotSelection {
		return s, wrongStep(s, "pick_consultation")
	}
	if strings.TrimSpace(e.Date) == "" {
		return s, ErrNoSlot
	}
	s.Choice = &Choice{Date: e.Date, Consultation: true}
	return s, nil
}

type Confirm struct {
	UserRequests string
}

func (e Confirm) apply(s State) (State, error) {
	if s.Step != StepSlotSelection {
		return s, wrongStep(s, "confirm")
	}
	if s.Choice == nil {
		return s, ErrNoSlot
	}
	s.UserRequests = strings.TrimSpace(e.UserRequests)
	s.Step = StepConfirmation
	return s, nil
}

type Back struct{}

func (Back) apply(s State) (State, error) {
	switch s.Step {
	case StepSlotSelection:
		s.Step = StepMenuSelection
		s.Choice = nil
	case StepConfirmation:
		s.Step = StepSlotSelection
	default:
		return s, wrongStep(s, "back")
	}
	return s, nil
}

// Submit records the persisted reservation and ends the attempt.
type Submit struct {
	ReservationID string
}

func (e Submit) apply(s State) (State, error) {
	if s.Step != StepConfirmation {
		return s, wrongStep(s, "submit")
	}
	if strings.TrimSpace(e.ReservationID) == "" {
		return s, fmt.Errorf("%w: missing reservation id", ErrInvalidTransition)
	}
	s.ReservationID = e.ReservationID
	s.Step = StepSubmitted
	return s, nil
}
