package recurrence

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"
)

// IterationMemo keeps the instants already generated for one series so
// later lookups resume the RRULE iterator instead of starting over. A memo
// is tied to the DTSTART, RRULE and EXDATE it was built from; any change to
// them makes it stale as a whole.
//
// An IterationMemo is not safe for concurrent use. The event store only
// touches memos while holding its own lock.
type IterationMemo struct {
	Fingerprint string
	LastOrdinal int // -1 before the first instant
	LastInstant time.Time

	exdates   []time.Time
	allDay    bool
	instants  []time.Time
	next      rrule.Next
	exhausted bool
	capped    bool
	limit     int
	detached  bool
}

// Fingerprint hashes everything that shapes the generated instants
func Fingerprint(series Series) string {
	hasher := sha256.New()

	hasher.Write([]byte(series.Start.Format(time.RFC3339Nano)))
	hasher.Write([]byte(series.Start.Location().String()))
	if series.Rule != nil {
		hasher.Write([]byte(series.Rule.RRuleString()))
	}

	exdates := make([]string, 0, len(series.ExDates))
	for _, exdate := range series.ExDates {
		exdates = append(exdates, exdate.UTC().Format(time.RFC3339Nano))
	}
	sort.Strings(exdates)
	for _, exdate := range exdates {
		hasher.Write([]byte(exdate))
	}

	return fmt.Sprintf("%x", hasher.Sum(nil))
}

// NewMemo starts a memo for the series. Non-recurring series produce a
// memo holding DTSTART only.
func (e *Engine) NewMemo(series Series) (*IterationMemo, error) {
	memo := &IterationMemo{
		Fingerprint: Fingerprint(series),
		LastOrdinal: -1,
		exdates:     append([]time.Time(nil), series.ExDates...),
		allDay:      series.AllDay,
		limit:       e.config.MaxOccurrences,
	}

	if !series.IsRecurring() {
		memo.instants = []time.Time{series.Start}
		memo.LastOrdinal = 0
		memo.LastInstant = series.Start
		memo.exhausted = true
		return memo, nil
	}

	opt := *series.Rule
	opt.Dtstart = series.Start
	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	memo.next = rule.Iterator()
	return memo, nil
}

// Valid reports whether the memo was built from the same series shape
func (m *IterationMemo) Valid(series Series) bool {
	return m != nil && m.Fingerprint == Fingerprint(series)
}

// Snapshot returns a detached copy of the exported state. The engine never
// resumes a detached memo.
func (m *IterationMemo) Snapshot() *IterationMemo {
	if m == nil {
		return nil
	}
	return &IterationMemo{
		Fingerprint: m.Fingerprint,
		LastOrdinal: m.LastOrdinal,
		LastInstant: m.LastInstant,
		detached:    true,
	}
}

// Len returns the number of instants generated so far
func (m *IterationMemo) Len() int {
	return len(m.instants)
}

// Capped reports whether generation stopped at the occurrence cap
func (m *IterationMemo) Capped() bool {
	return m.capped
}

// extendTo generates instants until one lies strictly after bound. That
// extra instant is the guard: it proves nothing else falls before bound.
func (m *IterationMemo) extendTo(bound time.Time) {
	for !m.exhausted && (len(m.instants) == 0 || !m.LastInstant.After(bound)) {
		m.pull()
	}
}

// extendBy generates instants until n instants exist or the rule ends
func (m *IterationMemo) extendBy(n int) {
	for !m.exhausted && len(m.instants) < n {
		m.pull()
	}
}

func (m *IterationMemo) extendAll() {
	for !m.exhausted {
		m.pull()
	}
}

func (m *IterationMemo) pull() {
	if len(m.instants) >= m.limit {
		m.exhausted = true
		m.capped = true
		return
	}
	t, ok := m.next()
	if !ok {
		m.exhausted = true
		return
	}
	m.instants = append(m.instants, t)
	m.LastOrdinal = len(m.instants) - 1
	m.LastInstant = t
}

// isExcluded checks if a given instant is in the EXDATE snapshot
func (m *IterationMemo) isExcluded(t time.Time) bool {
	for _, exdate := range m.exdates {
		if sameInstant(t, exdate, m.allDay) {
			return true
		}
	}
	return false
}

// indexAtOrAfter returns the first ordinal whose instant is not before t
func (m *IterationMemo) indexAtOrAfter(t time.Time) int {
	return sort.Search(len(m.instants), func(i int) bool {
		return !m.instants[i].Before(t)
	})
}
