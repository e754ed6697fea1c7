package eventstore

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cyp0633/calevents/internal/interval"
	"github.com/cyp0633/calevents/recurrence"
	"github.com/samber/mo"
)

// MaxInstant stands in for the end of open-ended series in the tree
var MaxInstant = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

// Fetcher loads event descriptors from the server
type Fetcher interface {
	FetchRange(ctx context.Context, calendarID string, r interval.Range) ([]Descriptor, error)
	FetchUID(ctx context.Context, calendarID, uid string) ([]Descriptor, error)
}

// Decrypter turns a descriptor into its authoritative content
type Decrypter interface {
	Decrypt(ctx context.Context, desc Descriptor) (DecryptedEvent, error)
}

// RecurringCache is the per-series state kept next to the master record.
// Snapshots carry a detached copy of the memo.
type RecurringCache struct {
	ParentEventID string
	Memo          *recurrence.IterationMemo

	// RecurrenceInstances maps an ordinal to the exception overriding it
	RecurrenceInstances map[int]string

	// exceptions by recurrence-id key; filled even before the master arrives
	exceptions map[int64]string
}

// Entry is one hit of a range query. Occurrence is set for instances
// generated from a recurring master.
type Entry struct {
	EventID    string
	Start      time.Time
	End        time.Time
	Record     Record
	Occurrence *recurrence.Occurrence
}

// Options configures a Cache
type Options struct {
	Fetcher   Fetcher
	Decrypter Decrypter
	Engine    *recurrence.Engine
	Logger    *slog.Logger

	// OnChange is called after fetched events were applied to a calendar
	OnChange func(calendarID string)
}

type calendarCache struct {
	events        map[string]*Record
	recurring     map[string]*RecurringCache
	tree          *interval.Tree[string]
	fetchTree     *interval.Tree[string]
	fetchCache    map[string]*fetchTask
	fetchUIDCache map[string]*fetchTask
}

func newCalendarCache() *calendarCache {
	return &calendarCache{
		events:        make(map[string]*Record),
		recurring:     make(map[string]*RecurringCache),
		tree:          interval.New[string](),
		fetchTree:     interval.New[string](),
		fetchCache:    make(map[string]*fetchTask),
		fetchUIDCache: make(map[string]*fetchTask),
	}
}

// Cache holds the events of every calendar shown by one view. All state is
// guarded by a single mutex; network and decrypt work happens outside it and
// re-checks the unmounted guard before touching anything.
type Cache struct {
	mu        sync.Mutex
	ref       int
	unmounted bool
	calendars map[string]*calendarCache
	seq       uint64

	ctx    context.Context
	cancel context.CancelFunc

	fetcher   Fetcher
	decrypter Decrypter
	engine    *recurrence.Engine
	logger    *slog.Logger
	onChange  func(string)
}

// NewCache creates an empty, mounted cache
func NewCache(opts Options) *Cache {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	engine := opts.Engine
	if engine == nil {
		engine = recurrence.NewEngineWithConfig(recurrence.DefaultEngineConfig, logger)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		calendars: make(map[string]*calendarCache),
		ctx:       ctx,
		cancel:    cancel,
		fetcher:   opts.Fetcher,
		decrypter: opts.Decrypter,
		engine:    engine,
		logger:    logger,
		onChange:  opts.OnChange,
	}
}

// Engine returns the recurrence engine used for expansion
func (c *Cache) Engine() *recurrence.Engine {
	return c.engine
}

// Acquire registers one more user of the cache
func (c *Cache) Acquire() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ref++
}

// Release drops a user. The last release unmounts the cache.
func (c *Cache) Release() {
	c.mu.Lock()
	c.ref--
	last := c.ref <= 0
	c.mu.Unlock()
	if last {
		c.Unmount()
	}
}

// Unmount aborts every pending fetch and clears all state. Later mutations
// are ignored.
func (c *Cache) Unmount() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unmounted {
		return
	}
	c.unmounted = true
	c.cancel()
	for _, cal := range c.calendars {
		cal.cancelTasks()
	}
	c.calendars = make(map[string]*calendarCache)
	c.logger.Debug("event cache unmounted")
}

// Unmounted reports whether the cache has been torn down
func (c *Cache) Unmounted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unmounted
}

// calendar returns the calendar cache, creating it on first use. Callers
// hold c.mu.
func (c *Cache) calendar(calendarID string) *calendarCache {
	cal, ok := c.calendars[calendarID]
	if !ok {
		cal = newCalendarCache()
		c.calendars[calendarID] = cal
	}
	return cal
}

// GetCachedEvent returns a snapshot of the cached record
func (c *Cache) GetCachedEvent(calendarID, eventID string) mo.Option[Record] {
	c.mu.Lock()
	defer c.mu.Unlock()
	cal, ok := c.calendars[calendarID]
	if !ok {
		return mo.None[Record]()
	}
	rec, ok := cal.events[eventID]
	if !ok {
		return mo.None[Record]()
	}
	return mo.Some(*rec)
}

// GetCachedRecurringEvent returns a snapshot of the series state for a UID
func (c *Cache) GetCachedRecurringEvent(calendarID, uid string) mo.Option[RecurringCache] {
	c.mu.Lock()
	defer c.mu.Unlock()
	cal, ok := c.calendars[calendarID]
	if !ok {
		return mo.None[RecurringCache]()
	}
	rc, ok := cal.recurring[uid]
	if !ok {
		return mo.None[RecurringCache]()
	}
	snapshot := *rc
	snapshot.RecurrenceInstances = make(map[int]string, len(rc.RecurrenceInstances))
	for ordinal, id := range rc.RecurrenceInstances {
		snapshot.RecurrenceInstances[ordinal] = id
	}
	snapshot.Memo = rc.Memo.Snapshot()
	snapshot.exceptions = nil
	return mo.Some(snapshot)
}

// EventsByUID returns the master and exceptions cached for a UID, master
// first and exceptions by recurrence-id.
func (c *Cache) EventsByUID(calendarID, uid string) []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	cal, ok := c.calendars[calendarID]
	if !ok {
		return nil
	}

	var out []Record
	for _, rec := range cal.events {
		if rec.UID() == uid {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ri, iok := out[i].RecurrenceID().Get()
		rj, jok := out[j].RecurrenceID().Get()
		if iok != jok {
			return !iok
		}
		if !ri.Equal(rj) {
			return ri.Before(rj)
		}
		return out[i].Event.ID < out[j].Event.ID
	})
	return out
}

// LoadSeries makes sure every event of a UID is cached and returns them
func (c *Cache) LoadSeries(ctx context.Context, calendarID, uid string) ([]Record, error) {
	h, err := c.EnsureUID(ctx, calendarID, uid)
	if err != nil {
		return nil, err
	}
	if err := h.Wait(ctx); err != nil {
		return nil, err
	}
	return c.EventsByUID(calendarID, uid), nil
}
