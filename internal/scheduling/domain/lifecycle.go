package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/looplab/fsm"

	fleet "fleet-risk-engine/internal/fleet/domain"
)

// Appointment lifecycle events.
const (
	EventConfirm  = "confirm"
	EventStart    = "start"
	EventComplete = "complete"
	EventDecline  = "decline"
	EventCancel   = "cancel"
)

var nonTerminal = []string{
	string(fleet.AppointmentScheduled),
	string(fleet.AppointmentConfirmed),
	string(fleet.AppointmentInProgress),
}

var lifecycle = fsm.Events{
	{Name: EventConfirm, Src: []string{string(fleet.AppointmentScheduled)}, Dst: string(fleet.AppointmentConfirmed)},
	{Name: EventStart, Src: []string{string(fleet.AppointmentConfirmed)}, Dst: string(fleet.AppointmentInProgress)},
	{Name: EventComplete, Src: []string{string(fleet.AppointmentInProgress)}, Dst: string(fleet.AppointmentCompleted)},
	{Name: EventDecline, Src: []string{string(fleet.AppointmentScheduled)}, Dst: string(fleet.AppointmentDeclined)},
	{Name: EventCancel, Src: nonTerminal, Dst: string(fleet.AppointmentCancelled)},
}

// NextStatus returns the status reached by firing event from current.
// Disallowed or unknown events wrap fleet.ErrInvalidTransition.
func NextStatus(ctx context.Context, current fleet.AppointmentStatus, event string) (fleet.AppointmentStatus, error) {
	if _, err := fleet.ParseAppointmentStatus(string(current)); err != nil {
		return "", err
	}
	machine := fsm.NewFSM(string(current), lifecycle, fsm.Callbacks{})
	if err := machine.Event(ctx, event); err != nil {
		var invalid fsm.InvalidEventError
		var unknown fsm.UnknownEventError
		if errors.As(err, &invalid) || errors.As(err, &unknown) {
			return "", fmt.Errorf("%w: %s from %s", fleet.ErrInvalidTransition, event, current)
		}
		return "", err
	}
	return fleet.AppointmentStatus(machine.Current()), nil
}

// AvailableEvents lists the events that can fire from status, sorted.
func AvailableEvents(status fleet.AppointmentStatus) []string {
	machine := fsm.NewFSM(string(status), lifecycle, fsm.Callbacks{})
	events := machine.AvailableTransitions()
	sort.Strings(events)
	return events
}

// ReleasesSlot reports whether event gives the center slot back.
func ReleasesSlot(event string) bool {
	switch event {
	case EventCancel, EventDecline, EventComplete:
		return true
	}
	return false
}
