package interval

import (
	"sort"
)

// Subtract returns the parts of q not covered by any of the given ranges,
// in chronological order. Adjacent gaps share their boundary instant with
// the covering ranges.
func Subtract(q Range, covered []Range) []Range {
	if len(covered) == 0 {
		return []Range{q}
	}
	if q.Start.Equal(q.End) {
		for _, c := range covered {
			if c.Contains(q.Start) {
				return nil
			}
		}
		return []Range{q}
	}

	sorted := make([]Range, len(covered))
	copy(sorted, covered)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	var gaps []Range
	cursor := q.Start
	for _, c := range sorted {
		if !c.Overlaps(q) {
			continue
		}
		if cursor.Before(c.Start) {
			gaps = append(gaps, Range{Start: cursor, End: c.Start})
		}
		if c.End.After(cursor) {
			cursor = c.End
		}
		if !cursor.Before(q.End) {
			return gaps
		}
	}
	if cursor.Before(q.End) {
		gaps = append(gaps, Range{Start: cursor, End: q.End})
	}
	return gaps
}
