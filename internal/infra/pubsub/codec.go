package pubsub

import (
	"encoding/json"

	"beacon/internal/domain/event"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// decodeEvent turns one raw bus payload into its typed event. A payload
// that fails to parse, or names no recipient/user, is malformed; callers
// log and drop it without disturbing the subscription loop.
func decodeEvent(channel string, payload []byte) (event.Event, error) {
	switch channel {
	case event.ChannelNotification:
		var ev event.Notification
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, errors.Wrap(err, "decode notification")
		}
		if ev.Recipient == uuid.Nil {
			return nil, errors.New("notification without recipient")
		}

		return ev, nil

	case event.ChannelUserUpdated:
		var ev event.UserUpdated
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, errors.Wrap(err, "decode user_updated")
		}

		return ev, nil

	case event.ChannelUserRemoved:
		var ev event.UserRemoved
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, errors.Wrap(err, "decode user_removed")
		}
		if ev.UserID == uuid.Nil {
			return nil, errors.New("user_removed without user_id")
		}

		return ev, nil

	case event.ChannelTokenUpdated:
		var ev event.TokenUpdated
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, errors.Wrap(err, "decode user_token_updated")
		}

		return ev, nil

	case event.ChannelTokenRemoved:
		var ev event.TokenRemoved
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, errors.Wrap(err, "decode user_token_removed")
		}

		return ev, nil

	default:
		return nil, errors.Errorf("unknown channel: %s", channel)
	}
}
