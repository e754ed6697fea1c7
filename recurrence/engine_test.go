package recurrence

import (
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEventComponent(uid string, start, end time.Time, rrule string) *ical.Component {
	comp := ical.NewComponent(ical.CompEvent)
	comp.Props.SetText(ical.PropUID, uid)
	comp.Props.SetDateTime(ical.PropDateTimeStart, start)
	comp.Props.SetDateTime(ical.PropDateTimeEnd, end)
	if rrule != "" {
		prop := ical.NewProp(ical.PropRecurrenceRule)
		prop.Value = rrule
		comp.Props.Set(prop)
	}
	return comp
}

func mustSeries(t *testing.T, comp *ical.Component) Series {
	t.Helper()
	series, err := SeriesFromComponent(comp)
	require.NoError(t, err)
	return series
}

func TestEngine_Between(t *testing.T) {
	engine := NewEngine()

	// Daily meeting from 9-10 AM starting Jan 1, 2024
	masterStart := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	masterEnd := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		rrule      string
		exdates    []time.Time
		rangeStart time.Time
		rangeEnd   time.Time
		expected   []int
	}{
		{
			name:       "Non-recurring event in range",
			rangeStart: time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
			rangeEnd:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			expected:   []int{0},
		},
		{
			name:       "Non-recurring event out of range",
			rangeStart: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			rangeEnd:   time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		},
		{
			name:       "Daily recurring event with occurrence in range",
			rrule:      "FREQ=DAILY;COUNT=7",
			rangeStart: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
			rangeEnd:   time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC),
			expected:   []int{2},
		},
		{
			name:       "Daily recurring event with no occurrence in range",
			rrule:      "FREQ=DAILY;COUNT=3",
			rangeStart: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
			rangeEnd:   time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC),
		},
		{
			name:       "Occurrence started before the range is still overlapping",
			rrule:      "FREQ=DAILY",
			rangeStart: time.Date(2024, 1, 5, 9, 30, 0, 0, time.UTC),
			rangeEnd:   time.Date(2024, 1, 5, 9, 45, 0, 0, time.UTC),
			expected:   []int{4},
		},
		{
			name:       "EXDATE removes an occurrence but keeps ordinals",
			rrule:      "FREQ=DAILY;COUNT=5",
			exdates:    []time.Time{time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)},
			rangeStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			rangeEnd:   time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC),
			expected:   []int{0, 2},
		},
		{
			name:       "Open-ended rule far in the future",
			rrule:      "FREQ=WEEKLY",
			rangeStart: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
			rangeEnd:   time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
			expected:   []int{9},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comp := newEventComponent("uid-1", masterStart, masterEnd, tt.rrule)
			for _, ex := range tt.exdates {
				comp.Props.Add(ToExdate(ex, false))
			}
			series := mustSeries(t, comp)

			occurrences, err := engine.Between(series, nil, tt.rangeStart, tt.rangeEnd)
			require.NoError(t, err)

			var ordinals []int
			for _, occ := range occurrences {
				ordinals = append(ordinals, occ.Ordinal)
				assert.Equal(t, series.Duration(), occ.End.Sub(occ.Start))
			}
			assert.Equal(t, tt.expected, ordinals)
		})
	}
}

func TestEngine_BetweenOpenEndedUsesGuard(t *testing.T) {
	engine := NewEngine()
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	series := mustSeries(t, newEventComponent("open", start, start.Add(time.Hour), "FREQ=DAILY"))

	memo, err := engine.NewMemo(series)
	require.NoError(t, err)

	_, err = engine.Between(series, memo, start, start.AddDate(0, 0, 9))
	require.NoError(t, err)

	// ten instants in range plus one guard
	assert.Equal(t, 11, memo.Len())
	assert.False(t, memo.Capped())
}

func TestEngine_BetweenCapsExpansion(t *testing.T) {
	engine := NewEngineWithConfig(EngineConfig{MemoEnabled: true, MaxOccurrences: 20}, nil)
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	series := mustSeries(t, newEventComponent("capped", start, start.Add(time.Hour), "FREQ=DAILY"))

	occurrences, err := engine.Between(series, nil, start, start.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Len(t, occurrences, 20)
}

func TestEngine_Locate(t *testing.T) {
	engine := NewEngine()
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	weekly := mustSeries(t, newEventComponent("weekly", start, start.Add(time.Hour), "FREQ=WEEKLY;COUNT=10"))

	tests := []struct {
		name      string
		series    Series
		rid       time.Time
		ordinal   int
		isFirst   bool
		isLast    bool
		hasFuture bool
		wantErr   error
	}{
		{name: "first", series: weekly, rid: start, ordinal: 0, isFirst: true},
		{name: "middle", series: weekly, rid: start.AddDate(0, 0, 21), ordinal: 3, hasFuture: true},
		{name: "last", series: weekly, rid: start.AddDate(0, 0, 63), ordinal: 9, isLast: true},
		{name: "past the end", series: weekly, rid: start.AddDate(0, 0, 70), wantErr: ErrNotInSeries},
		{name: "off cadence", series: weekly, rid: start.AddDate(0, 0, 3), wantErr: ErrNotInSeries},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			occ, err := engine.Locate(tt.series, tt.rid, nil)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ordinal, occ.Ordinal)
			assert.Equal(t, tt.isFirst, occ.IsFirst)
			assert.Equal(t, tt.isLast, occ.IsLast)
			assert.Equal(t, tt.hasFuture, occ.HasFutureOption())
			assert.True(t, occ.RecurrenceID.Equal(tt.rid))
		})
	}
}

func TestEngine_LocateSkipsExcludedNeighbours(t *testing.T) {
	engine := NewEngine()
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	comp := newEventComponent("ex", start, start.Add(time.Hour), "FREQ=DAILY;COUNT=3")
	comp.Props.Add(ToExdate(start.AddDate(0, 0, 2), false))
	series := mustSeries(t, comp)

	occ, err := engine.Locate(series, start.AddDate(0, 0, 1), nil)
	require.NoError(t, err)
	assert.True(t, occ.IsLast)
	assert.False(t, occ.IsFirst)
}

func TestEngine_LocateNonRecurring(t *testing.T) {
	engine := NewEngine()
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	series := mustSeries(t, newEventComponent("single", start, start.Add(time.Hour), ""))

	occ, err := engine.Locate(series, start, nil)
	require.NoError(t, err)
	assert.True(t, occ.IsSingleOccurrence)
	assert.False(t, occ.HasFutureOption())
}

func TestEngine_SeriesEnd(t *testing.T) {
	engine := NewEngine()
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	bounded := mustSeries(t, newEventComponent("b", start, start.Add(time.Hour), "FREQ=DAILY;COUNT=3"))
	end, ok, err := engine.SeriesEnd(bounded, nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, start.AddDate(0, 0, 2).Add(time.Hour), end)

	open := mustSeries(t, newEventComponent("o", start, start.Add(time.Hour), "FREQ=DAILY"))
	_, ok, err = engine.SeriesEnd(open, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExtractRecurrenceInfoFromComponent(t *testing.T) {
	comp := &ical.Component{
		Name:  ical.CompEvent,
		Props: make(ical.Props),
	}

	info := ExtractRecurrenceInfoFromComponent(comp)
	assert.Equal(t, "", info.RRULE)
	assert.Empty(t, info.EXDATE)
	assert.Nil(t, info.RecurrenceID)

	exdate := ical.NewProp(ical.PropExceptionDates)
	exdate.Value = "20240102T090000Z,20240104T090000Z"
	comp.Props.Add(exdate)
	comp.Props.Add(ToRecurrenceID(time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC), false))

	info = ExtractRecurrenceInfoFromComponent(comp)
	assert.Len(t, info.EXDATE, 2)
	require.NotNil(t, info.RecurrenceID)
	assert.Equal(t, 3, info.RecurrenceID.Day())
}

func TestSeriesFromComponent_Validation(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	_, err := SeriesFromComponent(newEventComponent("neg", start, start.Add(-time.Hour), ""))
	assert.ErrorIs(t, err, ErrInvalidComponent)

	_, err = SeriesFromComponent(newEventComponent("bad-rule", start, start.Add(time.Hour), "FREQ=SOMETIMES"))
	assert.ErrorIs(t, err, ErrInvalidRule)

	missing := ical.NewComponent(ical.CompEvent)
	_, err = SeriesFromComponent(missing)
	assert.ErrorIs(t, err, ErrInvalidComponent)
}

func TestSeriesFromComponent_AllDay(t *testing.T) {
	comp := ical.NewComponent(ical.CompEvent)
	comp.Props.SetText(ical.PropUID, "all-day")
	comp.Props.SetDate(ical.PropDateTimeStart, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))

	series := mustSeries(t, comp)
	assert.True(t, series.AllDay)
	assert.Equal(t, 24*time.Hour, series.Duration())
}
