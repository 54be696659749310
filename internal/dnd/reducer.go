package dnd

import (
	"fmt"
	"strings"
	"time"
)

// Container identifiers as the UI reports them. The planner board has one
// unscheduled-drafts bucket plus one container per visible calendar day.
const (
	UnscheduledContainer = "unscheduled-drafts"
	dayPrefix            = "day-"
)

// DayContainer formats the container id for a calendar day.
func DayContainer(day time.Time) string {
	return dayPrefix + day.Format("2006-01-02")
}

// ParseDayContainer extracts the date from a day container id.
func ParseDayContainer(id string) (time.Time, bool) {
	if !strings.HasPrefix(id, dayPrefix) {
		return time.Time{}, false
	}
	day, err := time.Parse("2006-01-02", strings.TrimPrefix(id, dayPrefix))
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

// Kind is the semantic action a drop resolves to.
type Kind int

const (
	// None: the gesture ended nowhere, or back where it started.
	None Kind = iota
	// OpenSchedule: ask for a time of day, then schedule the item on Day.
	// Covers both first-time scheduling and moving an already scheduled item.
	OpenSchedule
	// Unschedule: clear the schedule and return the item to drafts.
	Unschedule
	// MoveDate: shift a dated item to another day, keeping its semantics.
	MoveDate
)

// Action is the interpreted result of a drop gesture.
type Action struct {
	Kind      Kind
	DraggedID string
	Day       time.Time // set for OpenSchedule and MoveDate
}

// Drop describes a completed drag gesture in container terms. Dest is empty
// when the pointer was released outside any droppable area. The gesture
// library's own types never cross this boundary.
type Drop struct {
	DraggedID   string
	Source      string
	Dest        string
	SourceIndex int
	DestIndex   int
}

// Interpret maps a planner drop onto a semantic action.
//
//	unscheduled-drafts → day-X   OpenSchedule on X
//	day-X → unscheduled-drafts   Unschedule
//	day-X → day-Y                OpenSchedule on Y
//	reorder within drafts rail   None
//	anything → nowhere/same spot None
func Interpret(d Drop) (Action, error) {
	if d.Dest == "" {
		return Action{Kind: None, DraggedID: d.DraggedID}, nil
	}
	if d.Dest == d.Source && d.DestIndex == d.SourceIndex {
		return Action{Kind: None, DraggedID: d.DraggedID}, nil
	}

	destDay, destIsDay := ParseDayContainer(d.Dest)
	_, sourceIsDay := ParseDayContainer(d.Source)

	switch {
	case d.Source == UnscheduledContainer && destIsDay:
		return Action{Kind: OpenSchedule, DraggedID: d.DraggedID, Day: destDay}, nil
	case sourceIsDay && d.Dest == UnscheduledContainer:
		return Action{Kind: Unschedule, DraggedID: d.DraggedID}, nil
	case sourceIsDay && destIsDay:
		return Action{Kind: OpenSchedule, DraggedID: d.DraggedID, Day: destDay}, nil
	case d.Source == d.Dest && !destIsDay:
		// Reordering inside the drafts rail changes nothing the server
		// cares about.
		return Action{Kind: None, DraggedID: d.DraggedID}, nil
	}
	return Action{}, fmt.Errorf("unrecognized drop: %q -> %q", d.Source, d.Dest)
}

// InterpretDateDrop maps a CRM calendar drop (tasks dragged between day
// cells) onto a MoveDate action.
func InterpretDateDrop(draggedID, dest string) (Action, error) {
	if dest == "" {
		return Action{Kind: None, DraggedID: draggedID}, nil
	}
	day, ok := ParseDayContainer(dest)
	if !ok {
		return Action{}, fmt.Errorf("drop target %q is not a day cell", dest)
	}
	return Action{Kind: MoveDate, DraggedID: draggedID, Day: day}, nil
}
