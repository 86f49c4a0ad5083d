package models

import dErrors "rxvc/pkg/domain-errors"

// Status is the lifecycle state of a credential record. It is tracked on the
// record and never written into the signed payload.
//
// Prescriptions move created -> verified -> dispensed -> confirmed; any
// non-terminal state may move to revoked. Dispensing and confirmation
// records are created in StatusIssued and only ever move to revoked.
type Status string

const (
	StatusCreated   Status = "created"
	StatusVerified  Status = "verified"
	StatusDispensed Status = "dispensed"
	StatusConfirmed Status = "confirmed"
	StatusRevoked   Status = "revoked"
	StatusIssued    Status = "issued"
)

// Statuses lists every status.
var Statuses = []Status{StatusCreated, StatusVerified, StatusDispensed, StatusConfirmed, StatusRevoked, StatusIssued}

var transitions = map[Status][]Status{
	StatusCreated:   {StatusVerified, StatusDispensed, StatusRevoked},
	StatusVerified:  {StatusDispensed, StatusRevoked},
	StatusDispensed: {StatusConfirmed, StatusRevoked},
	StatusIssued:    {StatusRevoked},
}

// ParseStatus validates a status read from storage or input.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusCreated, StatusVerified, StatusDispensed, StatusConfirmed, StatusRevoked, StatusIssued:
		return st, nil
	}
	return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown status %q", s)
}

// CanTransitionTo reports whether moving to next is allowed. Staying in the
// same non-terminal state is allowed so repeated verifications are no-ops.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return !s.IsTerminal()
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusRevoked
}

// IsActive reports whether the credential still counts as live evidence.
func (s Status) IsActive() bool {
	return s != StatusRevoked
}

// AtLeastDispensed reports whether the prescription has been dispensed.
func (s Status) AtLeastDispensed() bool {
	return s == StatusDispensed || s == StatusConfirmed
}

// Predecessors lists the statuses from which next may be reached.
func Predecessors(next Status) []Status {
	var out []Status
	for _, st := range Statuses {
		if st.CanTransitionTo(next) {
			out = append(out, st)
		}
	}
	return out
}

func (s Status) String() string { return string(s) }
