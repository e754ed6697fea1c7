package recurrence

import (
	"fmt"
	"time"
)

// Between returns the occurrences of the series overlapping [start, end],
// with EXDATEs removed. Expansion stops at the first instant after end, so
// open-ended rules never iterate unbounded. The memo is extended in place;
// when it is nil or stale a throwaway one is used.
//
// Only Ordinal, RecurrenceID, Start and End are filled in; use Locate for
// the position flags.
func (e *Engine) Between(series Series, memo *IterationMemo, start, end time.Time) ([]Occurrence, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("range end %s is before start %s", end, start)
	}
	memo, err := e.ensureMemo(series, memo)
	if err != nil {
		return nil, err
	}

	duration := series.Duration()
	from := start.Add(-duration)

	memo.extendTo(end)
	if memo.capped && !memo.LastInstant.After(end) {
		e.logger.Warn("recurrence expansion truncated at occurrence cap",
			"uid", series.UID,
			"cap", e.config.MaxOccurrences,
			"range_end", end,
		)
	}

	var out []Occurrence
	for i := memo.indexAtOrAfter(from); i < len(memo.instants); i++ {
		instant := memo.instants[i]
		if instant.After(end) {
			break
		}
		if instant.Add(duration).Before(start) {
			continue
		}
		if memo.isExcluded(instant) {
			continue
		}
		out = append(out, Occurrence{
			Ordinal:      i,
			RecurrenceID: instant,
			Start:        instant,
			End:          instant.Add(duration),
		})
	}
	return out, nil
}

// Locate finds the occurrence a recurrence-id refers to, its ordinal and
// its position in the series. A recurrence-id that matches no generated
// instant yields ErrNotInSeries.
func (e *Engine) Locate(series Series, recurrenceID time.Time, memo *IterationMemo) (Occurrence, error) {
	memo, err := e.ensureMemo(series, memo)
	if err != nil {
		return Occurrence{}, err
	}

	if series.AllDay {
		y, m, d := recurrenceID.Date()
		recurrenceID = time.Date(y, m, d, 0, 0, 0, 0, series.Start.Location())
	}

	memo.extendTo(recurrenceID)
	i := memo.indexAtOrAfter(recurrenceID)
	if i >= len(memo.instants) || !sameInstant(memo.instants[i], recurrenceID, series.AllDay) {
		return Occurrence{}, fmt.Errorf("%w: recurrence-id %s of %q", ErrNotInSeries, recurrenceID.Format(time.RFC3339), series.UID)
	}

	instant := memo.instants[i]
	occ := Occurrence{
		Ordinal:      i,
		RecurrenceID: instant,
		Start:        instant,
		End:          instant.Add(series.Duration()),
		IsFirst:      true,
	}

	for j := 0; j < i; j++ {
		if !memo.isExcluded(memo.instants[j]) {
			occ.IsFirst = false
			break
		}
	}

	occ.IsLast = true
	for j := i + 1; ; j++ {
		memo.extendBy(j + 1)
		if j >= len(memo.instants) {
			// a capped memo cannot prove there is nothing left
			occ.IsLast = !memo.capped
			break
		}
		if !memo.isExcluded(memo.instants[j]) {
			occ.IsLast = false
			break
		}
	}

	occ.IsSingleOccurrence = occ.IsFirst && occ.IsLast
	return occ, nil
}

// SeriesEnd returns the end of the last occurrence, or false when the
// series is open-ended or runs past the occurrence cap.
func (e *Engine) SeriesEnd(series Series, memo *IterationMemo) (time.Time, bool, error) {
	if !series.IsRecurring() {
		return series.End, true, nil
	}
	if !series.IsBounded() {
		return time.Time{}, false, nil
	}
	memo, err := e.ensureMemo(series, memo)
	if err != nil {
		return time.Time{}, false, err
	}
	memo.extendAll()
	if memo.capped || len(memo.instants) == 0 {
		return time.Time{}, false, nil
	}
	return memo.LastInstant.Add(series.Duration()), true, nil
}

func (e *Engine) ensureMemo(series Series, memo *IterationMemo) (*IterationMemo, error) {
	if memo != nil && !memo.detached && memo.Valid(series) {
		return memo, nil
	}
	return e.NewMemo(series)
}
