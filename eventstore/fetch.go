package eventstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/cyp0633/calevents/internal/interval"
)

// fetchTask is one network fetch shared by every caller attached to it.
// All fields except done are guarded by Cache.mu; err is readable once
// done is closed.
type fetchTask struct {
	key       string
	uid       string
	rng       interval.Range
	refs      int
	settled   bool
	cancelled bool
	err       error
	done      chan struct{}
	cancel    context.CancelFunc
}

// Handle is a caller's attachment to the fetches covering its request
type Handle struct {
	cache    *Cache
	tasks    []*fetchTask
	released bool
}

func (c *Cache) newTask() (*fetchTask, context.Context) {
	ctx, cancel := context.WithCancel(c.ctx)
	c.seq++
	return &fetchTask{
		key:    strconv.FormatUint(c.seq, 10),
		done:   make(chan struct{}),
		cancel: cancel,
	}, ctx
}

// attach adds a task to the handle; settled tasks need no reference
func (h *Handle) attach(task *fetchTask) {
	if !task.settled {
		task.refs++
	}
	h.tasks = append(h.tasks, task)
}

// EnsureRange makes sure r is fetched for the calendar. Sub-ranges already
// covered by a finished or in-flight fetch are shared; only the uncovered
// gaps start new fetches. Tasks are registered before EnsureRange returns,
// so concurrent callers never fetch the same gap twice.
func (c *Cache) EnsureRange(ctx context.Context, calendarID string, r interval.Range) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unmounted {
		return nil, ErrUnmounted
	}
	if c.fetcher == nil {
		return nil, fmt.Errorf("%w: no fetcher configured", ErrFetch)
	}

	cal := c.calendar(calendarID)
	h := &Handle{cache: c}

	var covered []interval.Range
	for _, key := range cal.fetchTree.Overlapping(r) {
		task, ok := cal.fetchCache[key]
		if !ok {
			continue
		}
		covered = append(covered, task.rng)
		h.attach(task)
	}

	for _, gap := range interval.Subtract(r, covered) {
		task, taskCtx := c.newTask()
		task.rng = gap
		cal.fetchCache[task.key] = task
		cal.fetchTree.Insert(gap, task.key)
		h.attach(task)

		c.logger.Debug("fetching range",
			"calendar_id", calendarID,
			"start", gap.Start,
			"end", gap.End,
		)
		go c.runRangeFetch(taskCtx, calendarID, cal, task)
	}
	return h, nil
}

// EnsureUID makes sure every event of a UID is fetched for the calendar
func (c *Cache) EnsureUID(ctx context.Context, calendarID, uid string) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unmounted {
		return nil, ErrUnmounted
	}
	if c.fetcher == nil {
		return nil, fmt.Errorf("%w: no fetcher configured", ErrFetch)
	}

	cal := c.calendar(calendarID)
	h := &Handle{cache: c}
	if task, ok := cal.fetchUIDCache[uid]; ok {
		h.attach(task)
		return h, nil
	}

	task, taskCtx := c.newTask()
	task.uid = uid
	cal.fetchUIDCache[uid] = task
	h.attach(task)

	c.logger.Debug("fetching uid", "calendar_id", calendarID, "uid", uid)
	go c.runUIDFetch(taskCtx, calendarID, cal, task)
	return h, nil
}

func (c *Cache) runRangeFetch(ctx context.Context, calendarID string, cal *calendarCache, task *fetchTask) {
	descs, err := c.fetcher.FetchRange(ctx, calendarID, task.rng)
	c.settle(ctx, calendarID, cal, task, descs, err, func() {
		if cal.fetchCache[task.key] == task {
			delete(cal.fetchCache, task.key)
			cal.fetchTree.Remove(task.key)
		}
	})
}

func (c *Cache) runUIDFetch(ctx context.Context, calendarID string, cal *calendarCache, task *fetchTask) {
	descs, err := c.fetcher.FetchUID(ctx, calendarID, task.uid)
	c.settle(ctx, calendarID, cal, task, descs, err, func() {
		if cal.fetchUIDCache[task.uid] == task {
			delete(cal.fetchUIDCache, task.uid)
		}
	})
}

// settle records the outcome of a task. Results are applied only when the
// task was not cancelled and its calendar is still mounted; on failure the
// task's coverage is forgotten so a later request retries it.
func (c *Cache) settle(ctx context.Context, calendarID string, cal *calendarCache, task *fetchTask, descs []Descriptor, err error, forget func()) {
	defer close(task.done)
	if applied := c.apply(ctx, calendarID, cal, task, descs, err, forget); applied && c.onChange != nil {
		c.onChange(calendarID)
	}
}

func (c *Cache) apply(ctx context.Context, calendarID string, cal *calendarCache, task *fetchTask, descs []Descriptor, err error, forget func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	task.settled = true

	if c.unmounted || task.cancelled || ctx.Err() != nil || c.calendars[calendarID] != cal {
		task.err = context.Canceled
		forget()
		return false
	}
	if err != nil {
		task.err = fmt.Errorf("%w: %w", ErrFetch, err)
		forget()
		c.logger.Warn("fetch failed", "calendar_id", calendarID, "uid", task.uid, "error", err)
		return false
	}

	for _, desc := range descs {
		record, err := NewRecord(desc)
		if err != nil {
			c.logger.Warn("skipping malformed event", "calendar_id", calendarID, "event_id", desc.ID, "error", err)
			continue
		}
		c.upsertLocked(cal, record)
	}
	c.logger.Debug("fetch applied", "calendar_id", calendarID, "events", len(descs))
	return true
}

// Wait blocks until every task behind the handle settled and returns their
// joined errors. Giving up on ctx detaches the handle.
func (h *Handle) Wait(ctx context.Context) error {
	for _, task := range h.tasks {
		select {
		case <-task.done:
		case <-ctx.Done():
			h.Release()
			return ctx.Err()
		}
	}
	var errs []error
	for _, task := range h.tasks {
		if task.err != nil {
			errs = append(errs, task.err)
		}
	}
	h.Release()
	return errors.Join(errs...)
}

// Release detaches the handle. A task whose last caller detaches before it
// settles is cancelled and its coverage forgotten. Release is idempotent.
func (h *Handle) Release() {
	c := h.cache
	c.mu.Lock()
	defer c.mu.Unlock()
	if h.released {
		return
	}
	h.released = true
	for _, task := range h.tasks {
		if task.settled {
			continue
		}
		task.refs--
		if task.refs > 0 {
			continue
		}
		task.cancelled = true
		task.cancel()
		for _, cal := range c.calendars {
			cal.forgetTask(task)
		}
	}
}

func (cal *calendarCache) forgetTask(task *fetchTask) {
	if task.uid != "" {
		if cal.fetchUIDCache[task.uid] == task {
			delete(cal.fetchUIDCache, task.uid)
		}
		return
	}
	if cal.fetchCache[task.key] == task {
		delete(cal.fetchCache, task.key)
		cal.fetchTree.Remove(task.key)
	}
}

// cancelTasks aborts every unsettled fetch of the calendar
func (cal *calendarCache) cancelTasks() {
	for _, task := range cal.fetchCache {
		if !task.settled {
			task.cancelled = true
			task.cancel()
		}
	}
	for _, task := range cal.fetchUIDCache {
		if !task.settled {
			task.cancelled = true
			task.cancel()
		}
	}
}
