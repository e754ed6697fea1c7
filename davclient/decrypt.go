package davclient

import (
	"context"
	"fmt"

	"github.com/cyp0633/calevents/eventstore"
)

// Decrypt returns the authoritative VEVENT of a descriptor. CalDAV objects
// are stored in the clear, so this decodes the payload fetched along with
// the descriptor. Alarms are personal to the configured member.
func (c *Client) Decrypt(ctx context.Context, desc eventstore.Descriptor) (eventstore.DecryptedEvent, error) {
	if err := ctx.Err(); err != nil {
		return eventstore.DecryptedEvent{}, err
	}
	if len(desc.Payload) == 0 {
		return eventstore.DecryptedEvent{}, fmt.Errorf("event %s has no payload", desc.ID)
	}

	cal, err := decodeCalendar(desc.Payload)
	if err != nil {
		return eventstore.DecryptedEvent{}, fmt.Errorf("event %s: %w", desc.ID, err)
	}
	i := findEvent(cal, desc.RecurrenceID)
	if i < 0 {
		return eventstore.DecryptedEvent{}, fmt.Errorf("event %s: no matching VEVENT in payload", desc.ID)
	}

	comp, alarms := splitAlarms(cal.Children[i])
	decrypted := eventstore.DecryptedEvent{Component: comp}
	if len(alarms) > 0 && c.memberID != "" {
		decrypted.Personal = map[string]eventstore.PersonalData{
			c.memberID: {MemberID: c.memberID, Alarms: alarms},
		}
	}
	return decrypted, nil
}
