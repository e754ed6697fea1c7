package eventactions

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/cyp0633/calevents/eventstore"
	"github.com/cyp0633/calevents/internal/interval"
	"github.com/cyp0633/calevents/recurrence"
	"github.com/emersion/go-ical"
)

// Writer persists planned actions on the server
type Writer interface {
	CreateEvent(ctx context.Context, calendarID, memberID string, comp *ical.Component) (WriteResult, error)
	UpdateEvent(ctx context.Context, calendarID, memberID, eventID string, comp *ical.Component) (WriteResult, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}

// WriteResult is what the server reports after a write. When Descriptor is
// set the cache is updated right away instead of waiting for a refetch.
type WriteResult struct {
	EventID    string
	Sequence   int
	Descriptor *eventstore.Descriptor
}

// ExecuteOption configures Execute
type ExecuteOption func(*executor)

type executor struct {
	logger *slog.Logger
}

// WithExecuteLogger sets the logger used while executing a plan
func WithExecuteLogger(logger *slog.Logger) ExecuteOption {
	return func(e *executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Execute runs the actions of a plan in order and stops at the first
// failure. Every touched event and time span is invalidated in cache so
// the next query refetches it.
func Execute(ctx context.Context, plan *Plan, writer Writer, cache *eventstore.Cache, opts ...ExecuteOption) ([]WriteResult, error) {
	e := &executor{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(e)
	}
	results := make([]WriteResult, 0, len(plan.Actions))
	for i, action := range plan.Actions {
		if err := ctx.Err(); err != nil {
			return results, newError(KindAbandoned, err, "executing action %d of %d", i+1, len(plan.Actions))
		}

		var (
			res WriteResult
			err error
		)
		switch action.Type {
		case ActionCreate:
			res, err = writer.CreateEvent(ctx, action.CalendarID, action.MemberID, action.Component)
		case ActionUpdate:
			res, err = writer.UpdateEvent(ctx, action.CalendarID, action.MemberID, action.EventID, action.Component)
		case ActionDelete:
			err = writer.DeleteEvent(ctx, action.CalendarID, action.EventID)
			res = WriteResult{EventID: action.EventID}
		default:
			err = fmt.Errorf("unknown action type %d", action.Type)
		}
		if err != nil {
			return results, newError(KindFetch, err, "%s event %q in calendar %s", action.Type, action.EventID, action.CalendarID)
		}
		results = append(results, res)

		if cache != nil {
			e.syncCache(cache, action, res)
		}
	}
	return results, nil
}

func (e *executor) syncCache(cache *eventstore.Cache, action Action, res WriteResult) {
	if action.EventID != "" {
		cache.InvalidateEvent(action.CalendarID, action.EventID)
	}
	if r, ok := componentSpan(action.Component); ok {
		cache.InvalidateRange(action.CalendarID, r)
	}
	if res.Descriptor != nil {
		// a descriptor the cache rejects is picked up by the next fetch
		if err := cache.UpsertDescriptor(action.CalendarID, *res.Descriptor); err != nil {
			e.logger.Debug("written event not cached", "calendar_id", action.CalendarID, "event_id", res.EventID, "error", err)
		}
	}
}

// componentSpan returns the time span a written component may cover.
// Recurring masters reach to the far future.
func componentSpan(comp *ical.Component) (interval.Range, bool) {
	if comp == nil {
		return interval.Range{}, false
	}
	series, err := recurrence.SeriesFromComponent(comp)
	if err != nil {
		return interval.Range{}, false
	}
	end := series.End
	if series.IsRecurring() {
		end = eventstore.MaxInstant
	}
	return interval.NewRange(series.Start, end), true
}
