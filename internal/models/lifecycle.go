package models

import "time"

// statusOrder is the forward order of non-cancelled statuses
var statusOrder = map[SessionStatus]int{
	StatusScheduled: 0,
	StatusLobby:     1,
	StatusActive:    2,
	StatusCompleted: 3,
}

// Valid reports whether s is a known status
func (s SessionStatus) Valid() bool {
	_, ok := statusOrder[s]
	return ok || s == StatusCancelled
}

// IsTerminal reports whether no further transition is possible from s
func (s SessionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// NextStep returns the single forward successor of status, or "" for terminal statuses
func NextStep(status SessionStatus) SessionStatus {
	switch status {
	case StatusScheduled:
		return StatusLobby
	case StatusLobby:
		return StatusActive
	case StatusActive:
		return StatusCompleted
	default:
		return ""
	}
}

// IsForward reports whether moving from one status to another respects the
// lifecycle: strictly forward through the order, or sideways into cancelled
// from a non-terminal status.
func IsForward(from, to SessionStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	fromRank, okFrom := statusOrder[from]
	toRank, okTo := statusOrder[to]
	return okFrom && okTo && toRank > fromRank
}

// CanCancel reports whether a session in status may be cancelled
func CanCancel(status SessionStatus) bool {
	return !status.IsTerminal()
}

// StatusAt returns the status the session should have at now. Terminal
// statuses never change and time never moves a session backwards.
func StatusAt(s *Session, now time.Time) SessionStatus {
	if s.Status.IsTerminal() {
		return s.Status
	}

	target := StatusScheduled
	switch {
	case !now.Before(s.ScheduledEndTime):
		target = StatusCompleted
	case !now.Before(s.ScheduledStartTime):
		target = StatusActive
	case !now.Before(s.LobbyOpenTime):
		target = StatusLobby
	}

	if statusOrder[target] < statusOrder[s.Status] {
		return s.Status
	}
	return target
}

// Transition is one applied status change
type Transition struct {
	SessionID string        `json:"sessionId"`
	From      SessionStatus `json:"from"`
	To        SessionStatus `json:"to"`
	At        time.Time     `json:"at"`
}

// ApplyStep records the move of s into status at now
func ApplyStep(s *Session, status SessionStatus, now time.Time) {
	s.Status = status
	s.UpdatedAt = now
	switch status {
	case StatusActive:
		if s.StartedAt == nil {
			t := now
			s.StartedAt = &t
		}
	case StatusCompleted:
		if s.CompletedAt == nil {
			t := now
			s.CompletedAt = &t
		}
	}
}
