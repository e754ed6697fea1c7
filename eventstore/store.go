package eventstore

import (
	"sort"
	"time"

	"github.com/cyp0633/calevents/internal/interval"
	"github.com/cyp0633/calevents/recurrence"
)

// UpsertEvent inserts or replaces a record. Recurring masters are indexed
// over their whole series span and exceptions are linked to their series.
// Decrypted content of an unchanged revision is kept.
func (c *Cache) UpsertEvent(calendarID string, record Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unmounted {
		return
	}
	if record.Event.CalendarID == "" {
		record.Event.CalendarID = calendarID
	}
	c.upsertLocked(c.calendar(calendarID), record)
}

// UpsertDescriptor builds a record from shared metadata and upserts it
func (c *Cache) UpsertDescriptor(calendarID string, desc Descriptor) error {
	record, err := NewRecord(desc)
	if err != nil {
		return err
	}
	c.UpsertEvent(calendarID, record)
	return nil
}

func (c *Cache) upsertLocked(cal *calendarCache, record Record) {
	id := record.Event.ID
	if prev, ok := cal.events[id]; ok {
		c.unlinkLocked(cal, prev)
		if prev.Event.Revision != "" && prev.Event.Revision == record.Event.Revision {
			if record.readResult == nil {
				record.readResult = prev.readResult
			}
			if record.pending == nil {
				record.pending = prev.pending
			}
		}
	}

	rec := &record
	rec.series = nil
	cal.events[id] = rec
	uid := rec.UID()

	if rid, ok := rec.RecurrenceID().Get(); ok && uid != "" {
		rc := cal.recurringFor(uid)
		rc.exceptions[ridKey(rid, rec.IsAllDay)] = id
		cal.tree.Insert(interval.NewRange(rec.UTCStart, rec.UTCEnd), id)
		c.relinkLocked(cal, rc)
		return
	}

	if rec.IsRecurringMaster() && uid != "" {
		series, err := recurrence.SeriesFromComponent(rec.Component)
		if err == nil {
			rc := cal.recurringFor(uid)
			if rc.Memo != nil && !rc.Memo.Valid(series) {
				c.logger.Debug("series shape changed, dropping memo", "uid", uid, "event_id", id)
				rc.Memo = nil
			}
			if rc.Memo == nil && c.engine.Config().MemoEnabled {
				if memo, err := c.engine.NewMemo(series); err == nil {
					rc.Memo = memo
				}
			}
			rc.ParentEventID = id
			rec.series = &series

			end := MaxInstant
			if seriesEnd, bounded, err := c.engine.SeriesEnd(series, rc.Memo); err == nil && bounded {
				end = seriesEnd.UTC()
			}
			cal.tree.Insert(interval.NewRange(rec.UTCStart, end), id)
			c.relinkLocked(cal, rc)
			return
		}
		c.logger.Warn("indexing recurring event as single event", "event_id", id, "error", err)
	}

	cal.tree.Insert(interval.NewRange(rec.UTCStart, rec.UTCEnd), id)
	if rc, ok := cal.recurring[uid]; ok && rc.ParentEventID == "" {
		rc.Memo = nil
		if len(rc.exceptions) == 0 {
			delete(cal.recurring, uid)
		} else {
			c.relinkLocked(cal, rc)
		}
	}
}

// unlinkLocked detaches a record from the indices without dropping the
// series memo, so a re-upserted master can reuse it.
func (c *Cache) unlinkLocked(cal *calendarCache, rec *Record) {
	id := rec.Event.ID
	cal.tree.Remove(id)

	rc, ok := cal.recurring[rec.UID()]
	if !ok {
		return
	}
	if rid, ok := rec.RecurrenceID().Get(); ok {
		key := ridKey(rid, rec.IsAllDay)
		if rc.exceptions[key] == id {
			delete(rc.exceptions, key)
		}
	} else if rc.ParentEventID == id {
		rc.ParentEventID = ""
	}
}

func (c *Cache) removeLocked(cal *calendarCache, rec *Record) {
	id := rec.Event.ID
	c.unlinkLocked(cal, rec)
	delete(cal.events, id)

	uid := rec.UID()
	rc, ok := cal.recurring[uid]
	if !ok {
		return
	}
	if rec.series != nil && rc.ParentEventID == "" {
		rc.Memo = nil
	}
	if rc.ParentEventID == "" && len(rc.exceptions) == 0 {
		delete(cal.recurring, uid)
		return
	}
	c.relinkLocked(cal, rc)
}

// relinkLocked recomputes the ordinal of every exception of a series
func (c *Cache) relinkLocked(cal *calendarCache, rc *RecurringCache) {
	rc.RecurrenceInstances = make(map[int]string, len(rc.exceptions))
	master, ok := cal.events[rc.ParentEventID]
	if !ok || master.series == nil {
		return
	}
	for _, exceptionID := range rc.exceptions {
		exception, ok := cal.events[exceptionID]
		if !ok {
			continue
		}
		rid, ok := exception.RecurrenceID().Get()
		if !ok {
			continue
		}
		occ, err := c.engine.Locate(*master.series, rid, rc.Memo)
		if err != nil {
			c.logger.Debug("exception matches no occurrence", "event_id", exceptionID, "error", err)
			continue
		}
		rc.RecurrenceInstances[occ.Ordinal] = exceptionID
	}
}

func (cal *calendarCache) recurringFor(uid string) *RecurringCache {
	rc, ok := cal.recurring[uid]
	if !ok {
		rc = &RecurringCache{
			RecurrenceInstances: make(map[int]string),
			exceptions:          make(map[int64]string),
		}
		cal.recurring[uid] = rc
	}
	return rc
}

// QueryRange returns every event overlapping r, with recurring masters
// expanded into their occurrences inside r. Exceptions replace the
// occurrence they override and EXDATEs are skipped. Entries are ordered by
// start, then event ID.
func (c *Cache) QueryRange(calendarID string, r interval.Range) []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	cal, ok := c.calendars[calendarID]
	if !ok {
		return nil
	}

	var out []Entry
	for _, id := range cal.tree.Overlapping(r) {
		rec, ok := cal.events[id]
		if !ok {
			continue
		}
		if rec.series != nil {
			out = append(out, c.expandLocked(cal, id, rec, r)...)
			continue
		}
		out = append(out, Entry{
			EventID: id,
			Start:   rec.UTCStart,
			End:     rec.UTCEnd,
			Record:  *rec,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].EventID < out[j].EventID
	})
	return out
}

func (c *Cache) expandLocked(cal *calendarCache, id string, rec *Record, r interval.Range) []Entry {
	rc := cal.recurring[rec.UID()]
	var memo *recurrence.IterationMemo
	if rc != nil {
		memo = rc.Memo
	}

	occurrences, err := c.engine.Between(*rec.series, memo, r.Start, r.End)
	if err != nil {
		c.logger.Warn("expanding recurring event failed", "event_id", id, "error", err)
		return nil
	}

	out := make([]Entry, 0, len(occurrences))
	for _, occ := range occurrences {
		if rc != nil && rc.overrides(occ, rec.series.AllDay) {
			continue
		}
		out = append(out, Entry{
			EventID:    id,
			Start:      occ.Start.UTC(),
			End:        occ.End.UTC(),
			Record:     *rec,
			Occurrence: &occ,
		})
	}
	return out
}

// InvalidateEvent drops a record. Dropping a master clears its memo; the
// cached UID lookup of its series is forgotten so it is fetched again.
func (c *Cache) InvalidateEvent(calendarID, eventID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unmounted {
		return
	}
	cal, ok := c.calendars[calendarID]
	if !ok {
		return
	}
	rec, ok := cal.events[eventID]
	if !ok {
		return
	}
	uid := rec.UID()
	c.removeLocked(cal, rec)
	if task, ok := cal.fetchUIDCache[uid]; ok && task.settled {
		delete(cal.fetchUIDCache, uid)
	}
}

// InvalidateRange forgets fetch coverage overlapping r so the next
// EnsureRange fetches it again. Coverage of in-flight fetches is kept.
func (c *Cache) InvalidateRange(calendarID string, r interval.Range) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unmounted {
		return
	}
	cal, ok := c.calendars[calendarID]
	if !ok {
		return
	}
	for _, key := range cal.fetchTree.Overlapping(r) {
		task, ok := cal.fetchCache[key]
		if ok && !task.settled {
			continue
		}
		cal.fetchTree.Remove(key)
		delete(cal.fetchCache, key)
	}
}

// InvalidateCalendar drops everything cached for a calendar and aborts its
// pending fetches
func (c *Cache) InvalidateCalendar(calendarID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cal, ok := c.calendars[calendarID]
	if !ok {
		return
	}
	cal.cancelTasks()
	delete(c.calendars, calendarID)
}

// overrides reports whether an exception replaces occ. Linked exceptions
// are matched by ordinal, so an exception whose all-day flag differs from
// the master's still wins.
func (rc *RecurringCache) overrides(occ recurrence.Occurrence, allDay bool) bool {
	if _, ok := rc.RecurrenceInstances[occ.Ordinal]; ok {
		return true
	}
	_, ok := rc.exceptions[ridKey(occ.RecurrenceID, allDay)]
	return ok
}

// ridKey identifies a recurrence-id independently of its zone; all-day
// recurrence-ids compare by date
func ridKey(t time.Time, allDay bool) int64 {
	if allDay {
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).UnixNano()
	}
	return t.UnixNano()
}
