package models

import (
	"errors"
	"math"
	"time"
)

// MaxBonusHours caps a single bonus grant.
const MaxBonusHours = 10

// CreditMode selects how a credit interacts with an existing ledger entry.
type CreditMode string

const (
	// CreditModeOverwrite replaces hours and refreshes the timestamp, so
	// re-uploading a sheet never double counts.
	CreditModeOverwrite CreditMode = "overwrite"
	// CreditModeStrict rejects a second credit for the same event.
	CreditModeStrict CreditMode = "strict"
	// CreditModeBonus adds hours on top of an existing entry.
	CreditModeBonus CreditMode = "bonus"
)

var (
	// ErrDuplicateCredit is returned by strict credits for an existing entry.
	ErrDuplicateCredit = errors.New("student has already attended this event")
	// ErrNoCredit is returned by bonus credits without an existing entry.
	ErrNoCredit = errors.New("student has not attended this event")
	// ErrInvalidHours is returned for negative, non finite or out of range hours.
	ErrInvalidHours = errors.New("invalid hours")
)

// EventCredit is one ledger entry: hours credited to a student for an event.
type EventCredit struct {
	StudentID  string    `db:"student_id" json:"student_id"`
	EventID    string    `db:"event_id" json:"event_id"`
	Hours      float64   `db:"hours" json:"hours"`
	AttendedAt time.Time `db:"attended_at" json:"attended_at"`
}

// Ledger is a student's set of credits, at most one per event.
type Ledger []EventCredit

// Total sums the ledger, rounded to hundredths like the stored column.
func (l Ledger) Total() float64 {
	var sum float64
	for _, c := range l {
		sum += c.Hours
	}
	return roundHours(sum)
}

// Find returns the index of the entry for eventID or -1.
func (l Ledger) Find(eventID string) int {
	for i, c := range l {
		if c.EventID == eventID {
			return i
		}
	}
	return -1
}

// CreditChange describes the effect of one ApplyCredit call.
type CreditChange struct {
	Entry         EventCredit
	PreviousHours float64
	Created       bool
}

// ApplyCredit applies a credit for eventID to the ledger and returns the new
// ledger together with the affected entry. The input ledger is not modified.
// For CreditModeBonus hours is the delta; otherwise it is the absolute value.
func ApplyCredit(ledger Ledger, studentID, eventID string, hours float64, mode CreditMode, now time.Time) (Ledger, CreditChange, error) {
	if math.IsNaN(hours) || math.IsInf(hours, 0) || hours < 0 {
		return ledger, CreditChange{}, ErrInvalidHours
	}
	if mode == CreditModeBonus && hours > MaxBonusHours {
		return ledger, CreditChange{}, ErrInvalidHours
	}

	next := make(Ledger, len(ledger))
	copy(next, ledger)
	idx := next.Find(eventID)

	switch mode {
	case CreditModeOverwrite:
		if idx < 0 {
			entry := EventCredit{StudentID: studentID, EventID: eventID, Hours: roundHours(hours), AttendedAt: now}
			return append(next, entry), CreditChange{Entry: entry, Created: true}, nil
		}
		prev := next[idx].Hours
		next[idx].Hours = roundHours(hours)
		next[idx].AttendedAt = now
		return next, CreditChange{Entry: next[idx], PreviousHours: prev}, nil
	case CreditModeStrict:
		if idx >= 0 {
			return ledger, CreditChange{}, ErrDuplicateCredit
		}
		entry := EventCredit{StudentID: studentID, EventID: eventID, Hours: roundHours(hours), AttendedAt: now}
		return append(next, entry), CreditChange{Entry: entry, Created: true}, nil
	case CreditModeBonus:
		if idx < 0 {
			return ledger, CreditChange{}, ErrNoCredit
		}
		prev := next[idx].Hours
		next[idx].Hours = roundHours(prev + hours)
		return next, CreditChange{Entry: next[idx], PreviousHours: prev}, nil
	default:
		return ledger, CreditChange{}, errors.New("unknown credit mode")
	}
}

// LedgerEntry is a ledger row joined with its event for profile views.
type LedgerEntry struct {
	EventCredit
	EventName string    `db:"event_name" json:"event_name"`
	EventDate time.Time `db:"event_date" json:"event_date"`
	EventType EventType `db:"event_type" json:"event_type"`
}

func roundHours(h float64) float64 {
	return math.Round(h*100) / 100
}
