package xml

import (
	"time"

	"github.com/beevik/etree"
)

const timeFormat = "20060102T150405Z"

// TimeRange is a half-open [Start, End) range; nil bounds are left out
type TimeRange struct {
	Start *time.Time
	End   *time.Time
}

func (tr *TimeRange) toElement(elem *etree.Element) {
	if tr.Start != nil {
		elem.CreateAttr("start", tr.Start.UTC().Format(timeFormat))
	}
	if tr.End != nil {
		elem.CreateAttr("end", tr.End.UTC().Format(timeFormat))
	}
}

// PropFilter matches a property of the enclosing component
type PropFilter struct {
	Name      string
	TextMatch string
	// Collation defaults to the server's (usually i;ascii-casemap)
	Collation string
}

// Filter is a comp-filter, possibly nested
type Filter struct {
	ComponentName string
	TimeRange     *TimeRange
	PropFilters   []PropFilter
	SubFilter     *Filter
}

func (f *Filter) toElement(parent *etree.Element) {
	compFilter := parent.CreateElement("C:comp-filter")
	compFilter.CreateAttr("name", f.ComponentName)

	if f.TimeRange != nil {
		f.TimeRange.toElement(compFilter.CreateElement("C:time-range"))
	}
	for _, pf := range f.PropFilters {
		propFilter := compFilter.CreateElement("C:prop-filter")
		propFilter.CreateAttr("name", pf.Name)
		if pf.TextMatch != "" {
			textMatch := propFilter.CreateElement("C:text-match")
			if pf.Collation != "" {
				textMatch.CreateAttr("collation", pf.Collation)
			}
			textMatch.SetText(pf.TextMatch)
		}
	}
	if f.SubFilter != nil {
		f.SubFilter.toElement(compFilter)
	}
}

// CalendarQuery is a calendar-query REPORT body
type CalendarQuery struct {
	Props  []string
	Filter Filter
}

// EventQuery returns a query for VEVENT resources with their etag and data
func EventQuery(inner Filter) *CalendarQuery {
	inner.ComponentName = "VEVENT"
	return &CalendarQuery{
		Props: []string{"getetag", "calendar-data"},
		Filter: Filter{
			ComponentName: "VCALENDAR",
			SubFilter:     &inner,
		},
	}
}

// ToXML renders the query
func (q *CalendarQuery) ToXML() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	root := doc.CreateElement("C:calendar-query")
	AddNamespaces(doc)

	if len(q.Props) > 0 {
		prop := root.CreateElement("D:" + TagProp)
		for _, name := range q.Props {
			prop.CreateElement(qualified(name))
		}
	}
	q.Filter.toElement(root.CreateElement("C:filter"))
	return doc
}

// PropfindRequest is a PROPFIND body asking for named properties
type PropfindRequest struct {
	Props []string
}

// ToXML renders the request
func (r *PropfindRequest) ToXML() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	root := doc.CreateElement("D:propfind")
	AddNamespaces(doc)

	prop := root.CreateElement("D:" + TagProp)
	for _, name := range r.Props {
		prop.CreateElement(qualified(name))
	}
	return doc
}
