package billing

import "fmt"

type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
)

// transitions lists every legal edge. There is no way back into draft.
var transitions = map[Status][]Status{
	StatusDraft:     {StatusSent, StatusPaid, StatusCancelled},
	StatusSent:      {StatusPaid, StatusOverdue, StatusCancelled},
	StatusOverdue:   {StatusPaid, StatusCancelled},
	StatusPaid:      nil,
	StatusCancelled: nil,
}

func AllStatuses() []Status {
	return []Status{StatusDraft, StatusSent, StatusPaid, StatusOverdue, StatusCancelled}
}

func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	_, ok := transitions[st]
	return st, ok
}

// Editable reports whether line items may change.
func (s Status) Editable() bool {
	return s == StatusDraft
}

func (s Status) Terminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// Payable reports whether payments may be recorded.
func (s Status) Payable() bool {
	return s == StatusSent || s == StatusOverdue
}

func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot change invoice status from %s to %s", e.From, e.To)
}

// Transition returns the target status or a *TransitionError.
func Transition(from, to Status) (Status, error) {
	if !CanTransition(from, to) {
		return from, &TransitionError{From: from, To: to}
	}
	return to, nil
}

// NotEditableError is returned when a non-draft invoice is mutated.
type NotEditableError struct {
	Status Status
}

func (e *NotEditableError) Error() string {
	return fmt.Sprintf("invoice is %s; only draft invoices can be edited", e.Status)
}

// EnsureEditable is the gate every item mutation passes through.
func EnsureEditable(s Status) error {
	if !s.Editable() {
		return &NotEditableError{Status: s}
	}
	return nil
}
