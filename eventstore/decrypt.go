package eventstore

import (
	"context"
	"fmt"

	"github.com/samber/mo"
)

type decryptCall struct {
	done   chan struct{}
	result mo.Result[DecryptedEvent]
}

// Decrypt returns the decrypted content of a cached event. Concurrent
// callers share one decrypt; the outcome, failures included, is stored on
// the record and served until the record is replaced by a new revision.
func (c *Cache) Decrypt(ctx context.Context, calendarID, eventID string) (DecryptedEvent, error) {
	c.mu.Lock()
	if c.unmounted {
		c.mu.Unlock()
		return DecryptedEvent{}, ErrUnmounted
	}
	if c.decrypter == nil {
		c.mu.Unlock()
		return DecryptedEvent{}, fmt.Errorf("%w: no decrypter configured", ErrDecrypt)
	}
	cal, ok := c.calendars[calendarID]
	if !ok {
		c.mu.Unlock()
		return DecryptedEvent{}, fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}
	rec, ok := cal.events[eventID]
	if !ok {
		c.mu.Unlock()
		return DecryptedEvent{}, fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}
	if rec.readResult != nil {
		result := *rec.readResult
		c.mu.Unlock()
		return result.Get()
	}

	call := rec.pending
	if call == nil {
		call = &decryptCall{done: make(chan struct{})}
		rec.pending = call
		go c.runDecrypt(cal, rec.Event, call)
	}
	c.mu.Unlock()

	select {
	case <-call.done:
		return call.result.Get()
	case <-ctx.Done():
		return DecryptedEvent{}, ctx.Err()
	}
}

func (c *Cache) runDecrypt(cal *calendarCache, desc Descriptor, call *decryptCall) {
	event, err := c.decrypter.Decrypt(c.ctx, desc)

	result := mo.Ok(event)
	if err != nil {
		result = mo.Err[DecryptedEvent](fmt.Errorf("%w: event %s: %w", ErrDecrypt, desc.ID, err))
		c.logger.Warn("decrypt failed", "event_id", desc.ID, "error", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	call.result = result
	close(call.done)

	if c.unmounted {
		return
	}
	rec, ok := cal.events[desc.ID]
	if !ok || rec.pending != call {
		return
	}
	rec.pending = nil
	if rec.readResult == nil {
		rec.readResult = &result
	}
}
