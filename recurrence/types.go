package recurrence

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"
)

var (
	// ErrNotInSeries is returned when a recurrence-id does not match any
	// instant generated by the series' RRULE
	ErrNotInSeries = errors.New("occurrence is not part of the series")
	// ErrInvalidComponent is returned for components missing DTSTART or with
	// a negative duration
	ErrInvalidComponent = errors.New("invalid event component")
	// ErrInvalidRule is returned when an RRULE cannot be parsed
	ErrInvalidRule = errors.New("invalid recurrence rule")
)

// RecurrenceInfo contains all recurrence-related information for an event
type RecurrenceInfo struct {
	RRULE        string      // The RRULE string (without "RRULE:" prefix)
	EXDATE       []time.Time // Exception dates (excluded occurrences)
	RecurrenceID *time.Time  // For exception instances - which occurrence this overrides
}

// Series is the time shape of a master event: its first occurrence, the
// rule generating the others and the excluded instants.
type Series struct {
	UID     string
	Start   time.Time
	End     time.Time
	AllDay  bool
	Rule    *rrule.ROption // nil for non-recurring events
	ExDates []time.Time
}

// IsRecurring reports whether the series carries an RRULE
func (s Series) IsRecurring() bool {
	return s.Rule != nil
}

// Duration of every generated occurrence
func (s Series) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// IsBounded reports whether the rule terminates through COUNT or UNTIL
func (s Series) IsBounded() bool {
	return s.Rule == nil || s.Rule.Count > 0 || !s.Rule.Until.IsZero()
}

// Occurrence identifies one generated instance of a series.
type Occurrence struct {
	// Ordinal is the zero-based position among the instants generated by
	// the RRULE, EXDATEs included so that ordinals stay stable when
	// instants get excluded.
	Ordinal      int
	RecurrenceID time.Time
	Start        time.Time
	End          time.Time

	IsFirst            bool
	IsLast             bool
	IsSingleOccurrence bool
}

// HasFutureOption reports whether splitting the series at this occurrence
// differs from both editing this occurrence only and editing all of them.
func (o Occurrence) HasFutureOption() bool {
	return !o.IsFirst && !o.IsLast
}
